// Package filter decides whether a listing satisfies the keyword rules of a watch.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"campusmart/internal/model"
)

// Matcher is a compiled rule set. Include rules are alternatives, any exclude rule vetoes.
// An empty Matcher accepts every listing.
type Matcher struct {
	includes []matcher
	excludes []matcher
}

type matcher struct {
	scope model.RuleScope
	word  string
	re    *regexp.Regexp
}

// Compile builds a Matcher. Regular expressions are case-insensitive.
// An invalid pattern or unknown kind is an error.
func Compile(rules []model.Rule) (*Matcher, error) {
	m := &Matcher{}
	for _, r := range rules {
		c := matcher{scope: r.Scope}
		switch r.Kind {
		case model.RuleInclude, model.RuleExclude:
			c.word = strings.ToLower(r.Value)
		case model.RuleIncludeRe, model.RuleExcludeRe:
			re, err := regexp.Compile("(?i)" + r.Value)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid regex: %w", r.ID, err)
			}
			c.re = re
		default:
			return nil, fmt.Errorf("rule %d: unknown kind %q", r.ID, r.Kind)
		}

		if r.Kind == model.RuleInclude || r.Kind == model.RuleIncludeRe {
			m.includes = append(m.includes, c)
		} else {
			m.excludes = append(m.excludes, c)
		}
	}
	return m, nil
}

// Match reports whether l passes the rule set.
func (m *Matcher) Match(l model.Listing) bool {
	for _, c := range m.excludes {
		if c.matches(l) {
			return false
		}
	}
	if len(m.includes) == 0 {
		return true
	}
	for _, c := range m.includes {
		if c.matches(l) {
			return true
		}
	}
	return false
}

// Match compiles rules and applies them to l. Listings are rejected when the rules do not compile.
func Match(l model.Listing, rules []model.Rule) bool {
	m, err := Compile(rules)
	if err != nil {
		return false
	}
	return m.Match(l)
}

func (c matcher) matches(l model.Listing) bool {
	text := textForScope(l, c.scope)
	if c.re != nil {
		return c.re.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), c.word)
}

func textForScope(l model.Listing, scope model.RuleScope) string {
	switch scope {
	case model.ScopeTitle:
		return l.Title
	case model.ScopeDescription:
		return l.Description
	default:
		return strings.Join([]string{l.Title, l.Description, l.Location, l.Category}, " ")
	}
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

// ParseScope maps user input onto a scope; anything unrecognised means all fields.
func ParseScope(s string) model.RuleScope {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "title":
		return model.ScopeTitle
	case "description", "desc":
		return model.ScopeDescription
	default:
		return model.ScopeAll
	}
}
