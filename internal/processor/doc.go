// Package processor runs rule processing batches.
//
// A batch loads the user's active rules (seeding the built-in catalog the
// first time), fetches unread inbox emails, applies the first matching rule
// to each and appends one log entry per applied rule. Mailbox, rule store and
// log access go through small interfaces so the orchestration can be tested
// without Gmail or a database.
//
// Runner executes batches in the background, at most one per user, and lets
// callers poll or cancel them by job id.
package processor
