package gmail

import (
	"context"
	"fmt"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxrules/internal/instrumentation"
	"github.com/teemow/inboxrules/internal/rules"
)

// LabelChange is the label mutation one rule action translates to.
type LabelChange struct {
	AddLabelNames  []string // user labels, resolved to ids (created if missing)
	RemoveLabelIDs []string // system label ids
}

// ChangeFor translates a rule action into a label mutation.
//
// tag and move both add the named label; move does not remove INBOX.
// archive removes INBOX; mark_read removes UNREAD.
func ChangeFor(action rules.ActionType, value string) (LabelChange, error) {
	switch action {
	case rules.ActionTag, rules.ActionMove:
		if value == "" {
			return LabelChange{}, fmt.Errorf("action %s requires a label name", action)
		}
		return LabelChange{AddLabelNames: []string{value}}, nil
	case rules.ActionArchive:
		return LabelChange{RemoveLabelIDs: []string{LabelInbox}}, nil
	case rules.ActionMarkRead:
		return LabelChange{RemoveLabelIDs: []string{LabelUnread}}, nil
	default:
		return LabelChange{}, fmt.Errorf("unsupported action type %q", action)
	}
}

// ListLabels lists all Gmail labels for the user
func (c *Client) ListLabels(ctx context.Context) ([]*gmail.Label, error) {
	var resp *gmail.ListLabelsResponse
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Labels.List("me").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return resp.Labels, nil
}

// GetOrCreateLabel returns the id of the label with the exact given name,
// creating a visible user label when none exists. Ids are cached per client.
func (c *Client) GetOrCreateLabel(ctx context.Context, name string) (string, error) {
	c.labelMu.Lock()
	defer c.labelMu.Unlock()

	if id, ok := c.labels[name]; ok {
		return id, nil
	}

	labels, err := c.ListLabels(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range labels {
		c.labels[l.Name] = l.Id
	}
	if id, ok := c.labels[name]; ok {
		return id, nil
	}

	var created *gmail.Label
	err = c.observe(ctx, instrumentation.OperationCreate, func(ctx context.Context) error {
		var err error
		created, err = c.svc.Labels.Create("me", &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create label %q: %w", name, err)
	}

	c.labels[created.Name] = created.Id
	return created.Id, nil
}

// ApplyAction performs a rule action on one message.
func (c *Client) ApplyAction(ctx context.Context, messageID string, action rules.ActionType, value string) error {
	change, err := ChangeFor(action, value)
	if err != nil {
		return err
	}

	add := make([]string, 0, len(change.AddLabelNames))
	for _, name := range change.AddLabelNames {
		id, err := c.GetOrCreateLabel(ctx, name)
		if err != nil {
			return err
		}
		add = append(add, id)
	}

	return c.ModifyMessage(ctx, messageID, add, change.RemoveLabelIDs)
}
