// Package logging provides structured logging utilities for inboxrules.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "process")
//	logger.Info("rule applied",
//	    logging.RuleID(rule.ID),
//	    logging.EmailID(email.ID),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("batch started", logging.UserHash(user.Email))
//
// # Security Considerations
//
//   - User emails are hashed to prevent PII leakage while allowing correlation
//   - Senders are reduced to their domain
//   - Tokens are never logged directly
package logging
