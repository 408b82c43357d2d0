package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxrules/internal/google"
	"github.com/teemow/inboxrules/internal/instrumentation"
)

// Gmail system label identifiers.
const (
	LabelInbox  = "INBOX"
	LabelUnread = "UNREAD"
)

// maxPageSize is the largest page the messages.list endpoint returns.
const maxPageSize = 100

// Client wraps the Gmail Users service for one Google account.
type Client struct {
	svc     *gmail.UsersService
	account string
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	labelMu sync.Mutex
	labels  map[string]string // label name -> id
}

// NewClient creates a Gmail client for account from API client options.
// Production callers pass option.WithHTTPClient; tests point
// option.WithEndpoint at an httptest server.
func NewClient(ctx context.Context, account string, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		svc:     svc.Users,
		account: account,
		logger:  slog.Default(),
		labels:  make(map[string]string),
	}, nil
}

// NewClientForAccount creates a Gmail client authenticated with the stored
// token of account.
func NewClientForAccount(ctx context.Context, provider google.ClientProvider, account string) (*Client, error) {
	httpClient, err := provider.HTTPClient(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", google.GetAuthenticationErrorMessage(account), err)
	}
	return NewClient(ctx, account, option.WithHTTPClient(httpClient))
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// WithMetrics attaches a metrics recorder for Gmail API calls.
func (c *Client) WithMetrics(m *instrumentation.Metrics) *Client {
	c.metrics = m
	return c
}

// WithLogger replaces the client logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// observe runs one Gmail API call inside a client span and records its outcome.
func (c *Client) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, operation,
		instrumentation.NewSpanAttributeBuilder().WithAccount(c.account).Build()...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))

	return err
}

// ListUnreadInbox lists up to maxResults unread messages in the inbox,
// making multiple API calls if necessary.
func (c *Client) ListUnreadInbox(ctx context.Context, maxResults int64) ([]*gmail.Message, error) {
	var all []*gmail.Message
	pageToken := ""

	for {
		remaining := maxResults - int64(len(all))
		if remaining <= 0 {
			break
		}

		pageSize := remaining
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		var res *gmail.ListMessagesResponse
		err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
			req := c.svc.Messages.List("me").
				LabelIds(LabelInbox).
				Q("is:unread").
				MaxResults(pageSize).
				Context(ctx)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var err error
			res, err = req.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list inbox messages: %w", err)
		}

		all = append(all, res.Messages...)

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	if int64(len(all)) > maxResults {
		all = all[:maxResults]
	}

	return all, nil
}

// GetMessage retrieves a full Gmail message
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// ModifyMessage adds and removes label ids on a single message.
func (c *Client) ModifyMessage(ctx context.Context, messageID string, add, remove []string) error {
	err := c.observe(ctx, instrumentation.OperationModify, func(ctx context.Context) error {
		_, err := c.svc.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
			AddLabelIds:    add,
			RemoveLabelIds: remove,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to modify message %s: %w", messageID, err)
	}
	return nil
}
