// Package gmail connects the rule engine to Gmail mailboxes.
//
// Client wraps the Gmail Users service for one Google account and offers the
// operations rule processing needs:
//   - Listing unread inbox messages (paginated)
//   - Loading full messages and normalizing them into rules.Email
//   - Resolving label names to ids, creating missing labels
//   - Applying a rule action as a label modification
//
// Mailboxes sits on top and serves many users, caching one Client per Google
// account. It records an audit line and a metric for every action it applies.
//
// Authentication:
// Clients are built from the per-account tokens managed by the google package
// (~/.cache/inboxrules/). Tests point a Client at an httptest server with
// option.WithEndpoint.
//
// Example usage:
//
//	cfg := google.Config{ClientID: id, ClientSecret: secret}
//	client, err := gmail.NewClientForAccount(ctx, google.NewFileTokenProvider(cfg), "default")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	emails, err := client.FetchEmails(ctx, 50)
package gmail
