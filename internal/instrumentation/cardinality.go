package instrumentation

import "strings"

// Cardinality management helpers for metrics and audit logs.
// User addresses and senders are reduced to their domain before they are used
// as label values or general log fields.

// ExtractUserDomain extracts the domain part from an email address.
// Display-name forms such as "Shop <news@shop.example>" are accepted.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")             // "example.com"
//	ExtractUserDomain("Shop <news@shop.example>")     // "shop.example"
//	ExtractUserDomain("invalid")                      // "unknown"
func ExtractUserDomain(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.LastIndex(email, "<"); i >= 0 {
		email = strings.TrimSuffix(email[i+1:], ">")
	}
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Operation types for Google API metrics.
const (
	OperationList   = "list"
	OperationGet    = "get"
	OperationModify = "modify"
	OperationCreate = "create"
)
