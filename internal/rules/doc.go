// Package rules implements the email rule engine: matching a single rule
// against an email, resolving the one rule that applies out of an ordered
// rule set, validating rule drafts, and the built-in default catalog.
//
// Resolution is first-match-wins over active rules sorted by ascending
// priority, with ties broken by input order:
//
//	rule := rules.Resolve(email, userRules)
//	if rule != nil {
//	    // apply rule.ActionType / rule.ActionValue
//	}
//
// For a batch of emails, build a Resolver once so patterns are compiled a
// single time:
//
//	r := rules.NewResolver(userRules)
//	for _, e := range emails {
//	    res := r.Evaluate(e)
//	    ...
//	}
//
// Everything in this package is pure and safe for concurrent use.
package rules
