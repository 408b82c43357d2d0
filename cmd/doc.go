// Package cmd implements the command-line interface for inboxrules.
//
// This package provides the following commands:
//   - auth: Authorize access to a Gmail account and store its token
//   - process: Apply rules to unread inbox emails, or preview with --dry-run
//   - rules: List, add, validate, enable, disable and delete rules
//   - serve: Start the HTTP API server with background processing jobs
//   - version: Display version information
package cmd
