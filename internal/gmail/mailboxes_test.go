package gmail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxrules/internal/instrumentation"
	"github.com/teemow/inboxrules/internal/rules"
	"github.com/teemow/inboxrules/internal/store"
)

func newTestMailboxes(t *testing.T, fake *fakeGmail, buf *bytes.Buffer) (*Mailboxes, *[]string) {
	t.Helper()

	client := newTestClient(t, fake)
	var opened []string
	factory := func(_ context.Context, account string) (*Client, error) {
		opened = append(opened, account)
		return client, nil
	}

	logger := slog.New(slog.NewJSONHandler(buf, nil))
	return NewMailboxes(factory, nil, instrumentation.NewAuditLogger(logger), logger), &opened
}

func TestMailboxes_FetchEmails(t *testing.T) {
	fake := newFakeGmail()
	fake.addMessage(plainMessage("m1", "a@example.com", "one", "body"))
	var buf bytes.Buffer
	mb, opened := newTestMailboxes(t, fake, &buf)
	ctx := context.Background()

	user := store.User{ID: "alice", Email: "alice@example.com"}
	got, err := mb.FetchEmails(ctx, user, 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = mb.FetchEmails(ctx, user, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, *opened, "client is cached per account")

	_, err = mb.FetchEmails(ctx, store.User{ID: "bob", Account: "work"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "work"}, *opened)
}

func TestMailboxes_FactoryError(t *testing.T) {
	mb := NewMailboxes(func(context.Context, string) (*Client, error) {
		return nil, errors.New("no token")
	}, nil, nil, nil)

	_, err := mb.FetchEmails(context.Background(), store.User{ID: "alice"}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")

	ok := mb.ApplyRule(context.Background(), store.User{ID: "alice"}, rules.Email{ID: "m1"},
		rules.Rule{ID: 1, ActionType: rules.ActionArchive})
	assert.False(t, ok)
}

func TestMailboxes_ApplyRule(t *testing.T) {
	user := store.User{ID: "alice", Email: "alice@example.com"}
	email := rules.Email{ID: "m1", Sender: "billing@shop.example"}

	t.Run("success is audited", func(t *testing.T) {
		fake := newFakeGmail()
		var buf bytes.Buffer
		mb, _ := newTestMailboxes(t, fake, &buf)

		rule := rules.Rule{ID: 7, Name: "Bills", ActionType: rules.ActionTag, ActionValue: rules.LabelBills}
		ok := mb.ApplyRule(context.Background(), user, email, rule)
		assert.True(t, ok)
		assert.NotNil(t, fake.modified["m1"])

		out := buf.String()
		assert.Contains(t, out, `"msg":"rule_action"`)
		assert.Contains(t, out, "shop.example")
		assert.NotContains(t, out, "billing@shop.example")
	})

	t.Run("failure returns false and is audited", func(t *testing.T) {
		fake := newFakeGmail()
		fake.failMod = true
		var buf bytes.Buffer
		mb, _ := newTestMailboxes(t, fake, &buf)

		rule := rules.Rule{ID: 8, Name: "Archive", ActionType: rules.ActionArchive}
		ok := mb.ApplyRule(context.Background(), user, email, rule)
		assert.False(t, ok)

		out := buf.String()
		assert.Contains(t, out, `"msg":"rule_action_failed"`)
		assert.Contains(t, out, `"msg":"failed to apply rule"`)
	})
}
