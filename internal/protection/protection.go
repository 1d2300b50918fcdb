// Package protection gates SQL statements before they reach the database.
// It enforces single-statement execution and, in read-only mode, a
// leading-keyword allow-list. Classification is lexical: a small scanner
// that understands MySQL quoting ('...', "...", `...`, backslash and
// doubled-quote escapes) and comments (#, -- , /* */). The scanner never
// needs to understand the statement beyond its leading keyword.
package protection

import (
	"fmt"
	"strings"
)

// DefaultAllowedStatements is the read-only leading-keyword allow-list.
var DefaultAllowedStatements = []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"}

// Config is the gate's own config type.
type Config struct {
	// AllowWrites disables the allow-list entirely. Single-statement
	// enforcement always applies.
	AllowWrites bool
	// AllowedStatements overrides DefaultAllowedStatements when non-empty.
	// Entries are leading keywords, case-insensitive.
	AllowedStatements []string
}

// Gate validates SQL statements against the configured policy.
type Gate struct {
	allowWrites bool
	allowed     map[string]bool
	allowedList string
}

// NewGate creates a new Gate.
func NewGate(config Config) *Gate {
	list := config.AllowedStatements
	if len(list) == 0 {
		list = DefaultAllowedStatements
	}
	allowed := make(map[string]bool, len(list))
	normalized := make([]string, len(list))
	for i, kw := range list {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		allowed[kw] = true
		normalized[i] = kw
	}
	return &Gate{
		allowWrites: config.AllowWrites,
		allowed:     allowed,
		allowedList: strings.Join(normalized, ", "),
	}
}

// Check returns nil if the statement may execute, or a descriptive error.
// The input must be exactly one statement; in read-only mode its leading
// keyword must be on the allow-list.
func (g *Gate) Check(sql string) error {
	n := StatementCount(sql)
	if n == 0 {
		return fmt.Errorf("empty statement")
	}
	if n > 1 {
		return fmt.Errorf("multi-statement SQL is not allowed: found %d statements", n)
	}

	if g.allowWrites {
		return nil
	}

	keyword := LeadingKeyword(sql)
	if keyword == "" {
		return fmt.Errorf("unable to determine statement type")
	}
	if !g.allowed[keyword] {
		return fmt.Errorf("statement %s is not allowed in read-only mode (allowed: %s)", keyword, g.allowedList)
	}
	return nil
}

// LeadingKeyword returns the first keyword of the statement, uppercased,
// skipping whitespace, comments, and opening parentheses. Returns "" when
// the statement does not start with a word.
func LeadingKeyword(sql string) string {
	i, n := 0, len(sql)
	for i < n {
		c := sql[i]
		switch {
		case isSpace(c) || c == '(':
			i++
		case c == '#':
			i = skipLineComment(sql, i)
		case c == '-' && i+1 < n && sql[i+1] == '-':
			i = skipLineComment(sql, i)
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i = skipBlockComment(sql, i)
		default:
			if !isWordByte(c) {
				return ""
			}
			start := i
			for i < n && isWordByte(sql[i]) {
				i++
			}
			return strings.ToUpper(sql[start:i])
		}
	}
	return ""
}

// StatementCount counts top-level statements, ignoring semicolons inside
// string literals, quoted identifiers, and comments. A trailing semicolon
// does not start a new statement.
func StatementCount(sql string) int {
	count := 0
	hasContent := false
	i, n := 0, len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			hasContent = true
			i = skipQuoted(sql, i)
		case c == '#':
			i = skipLineComment(sql, i)
		case c == '-' && i+1 < n && sql[i+1] == '-' && (i+2 >= n || isSpace(sql[i+2])):
			// MySQL requires whitespace (or end of input) after "--".
			i = skipLineComment(sql, i)
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i = skipBlockComment(sql, i)
		case c == ';':
			if hasContent {
				count++
				hasContent = false
			}
			i++
		default:
			if !isSpace(c) {
				hasContent = true
			}
			i++
		}
	}
	if hasContent {
		count++
	}
	return count
}

// ReturnsRows reports whether a statement with the given leading keyword
// produces a result set (as opposed to an affected-row count).
func ReturnsRows(keyword string) bool {
	switch keyword {
	case "SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN",
		"WITH", "TABLE", "VALUES",
		"CHECK", "CHECKSUM", "ANALYZE", "OPTIMIZE", "REPAIR":
		return true
	}
	return false
}

// skipQuoted advances past a quoted region starting at sql[i] (a quote
// byte). Handles backslash escapes in ' and " (not in backtick identifiers)
// and doubled-quote escapes in all three. Returns the index after the
// closing quote, or len(sql) for an unterminated literal.
func skipQuoted(sql string, i int) int {
	quote := sql[i]
	n := len(sql)
	i++
	for i < n {
		switch {
		case sql[i] == '\\' && quote != '`' && i+1 < n:
			i += 2
		case sql[i] == quote:
			if i+1 < n && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		default:
			i++
		}
	}
	return n
}

func skipLineComment(sql string, i int) int {
	for i < len(sql) && sql[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(sql string, i int) int {
	n := len(sql)
	i += 2
	for i+1 < n {
		if sql[i] == '*' && sql[i+1] == '/' {
			return i + 2
		}
		i++
	}
	return n
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}
