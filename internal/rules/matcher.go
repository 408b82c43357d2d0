package rules

import (
	"regexp"
	"strings"
)

// Pattern is the compiled form of a rule's match value.
// The zero Pattern never matches anything.
type Pattern struct {
	re        *regexp.Regexp
	substring string
	literal   bool
}

// Usable reports whether the pattern can match at all
func (p Pattern) Usable() bool {
	return p.re != nil || p.literal
}

// MatchString tests the pattern against target. An empty target never matches.
func (p Pattern) MatchString(target string) bool {
	if target == "" {
		return false
	}
	if p.re != nil {
		return p.re.MatchString(target)
	}
	return p.literal && strings.Contains(strings.ToLower(target), p.substring)
}

// CompilePattern builds the Pattern for a match type and value.
//
// For MatchRegex the value is compiled case-insensitively and searched
// anywhere in the target; a value that fails to compile yields the zero
// Pattern. For every other match type the value is taken verbatim as a
// case-insensitive substring.
func CompilePattern(matchType MatchType, value string) Pattern {
	if matchType == MatchRegex {
		re, err := compileRegex(value)
		if err != nil {
			return Pattern{}
		}
		return Pattern{re: re}
	}

	return Pattern{substring: strings.ToLower(value), literal: true}
}

func compileRegex(value string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + value)
}

// MatchTarget returns the part of the email a match type is tested against
func MatchTarget(email Email, matchType MatchType) string {
	switch matchType {
	case MatchSender:
		return email.Sender
	case MatchSubject:
		return email.Subject
	case MatchBody:
		return email.BodyPreview
	case MatchHeader:
		// approximation: raw headers are not carried on Email
		return strings.Join([]string{email.Sender, email.To, email.Subject}, " ")
	case MatchRegex:
		return strings.Join([]string{email.Sender, email.Subject, email.BodyPreview}, " ")
	default:
		return ""
	}
}

// Matches reports whether rule matches email. It does not look at IsActive
// and never fails: a rule with an unparsable regex simply never matches.
func Matches(email Email, rule Rule) bool {
	target := MatchTarget(email, rule.MatchType)
	if target == "" {
		return false
	}
	return CompilePattern(rule.MatchType, rule.MatchValue).MatchString(target)
}
