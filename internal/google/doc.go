// Package google provides OAuth2 authentication and per-account token storage
// for the Gmail API.
//
// Tokens live in one file per account (google-<account>.token) under the
// configured token directory. FileTokenProvider exposes them to the Gmail
// client as refreshing HTTP clients.
package google
