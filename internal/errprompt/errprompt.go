// Package errprompt matches database error messages against configured
// patterns and produces guidance text for the calling agent. A prompt rule
// turns a recurring failure ("Error 1142 ... command denied") into a steering
// message ("you only have read access, do not attempt writes").
package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule maps an error-message regex to a guidance message.
type Rule struct {
	Pattern string
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher evaluates error messages against the configured rules.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a new Matcher. Returns an error on invalid regex
// patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

// Match evaluates the error message against all rules, top to bottom.
// It returns the matching guidance messages joined with newlines (empty when
// nothing matched) and the patterns that matched (nil when nothing matched).
func (m *Matcher) Match(errMsg string) (string, []string) {
	var messages []string
	var patterns []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			messages = append(messages, rule.message)
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return strings.Join(messages, "\n"), patterns
}
