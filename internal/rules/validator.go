package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Validate checks a rule draft and returns one human-readable message per
// problem. An empty slice means the draft is valid. Validate never mutates
// the draft and never fails.
func Validate(draft Rule) []string {
	errs := []string{}

	required := []struct {
		field string
		value string
	}{
		{"name", draft.Name},
		{"match_type", string(draft.MatchType)},
		{"match_value", draft.MatchValue},
		{"action_type", string(draft.ActionType)},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, r.field+" is required")
		}
	}

	if draft.MatchType != "" && !draft.MatchType.Valid() {
		errs = append(errs, "match_type must be one of: "+joinMatchTypes())
	}

	if draft.ActionType != "" && !draft.ActionType.Valid() {
		errs = append(errs, "action_type must be one of: "+joinActionTypes())
	}

	if draft.ActionType.RequiresValue() && draft.ActionValue == "" {
		errs = append(errs, "action_value is required for tag and move actions")
	}

	if draft.MatchType == MatchRegex {
		if _, err := regexp.Compile(draft.MatchValue); err != nil {
			errs = append(errs, fmt.Sprintf("invalid regex pattern: %v", err))
		}
	}

	return errs
}

func joinMatchTypes() string {
	names := make([]string, len(MatchTypes))
	for i, t := range MatchTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func joinActionTypes() string {
	names := make([]string, len(ActionTypes))
	for i, t := range ActionTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// ValidationError carries the messages returned by Validate for callers that
// need an error value, e.g. to block persistence.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid rule: " + strings.Join(e.Problems, "; ")
}

// Check runs Validate and returns a *ValidationError when the draft is invalid
func Check(draft Rule) error {
	if problems := Validate(draft); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
