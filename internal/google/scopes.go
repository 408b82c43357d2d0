package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultOAuthScopes are the Google OAuth scopes inboxrules requests.
//
// gmail.modify covers listing and reading messages and changing their labels;
// gmail.labels is needed to create the labels that tag and move rules target.
var DefaultOAuthScopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailLabelsScope,
}
