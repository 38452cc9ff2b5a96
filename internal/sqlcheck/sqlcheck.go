// Package sqlcheck gates which query text the SQL gateway will forward.
//
// The check is a conservative textual allow-list, not a parser: a query is
// accepted only when, after comment stripping, it is a single SELECT ... FROM
// statement with no destructive keyword anywhere. It guards against
// destructive statements and multi-statement batching; it is not proof
// against every SQL-injection vector.
package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	blockComments = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComments  = regexp.MustCompile(`--[^\n]*`)
	selectPrefix  = regexp.MustCompile(`(?i)^select\b`)
	fromKeyword   = regexp.MustCompile(`(?i)\bfrom\b`)

	// Keywords rejected as whole words anywhere in the statement. Nested
	// read-only subqueries pass because they cannot contain these keywords
	// without tripping this same check.
	forbidden = regexp.MustCompile(`(?i)\b(update|delete|insert|drop|alter|create|truncate|grant|revoke)\b`)
)

// Validate returns nil when query is a single safe read-only SELECT.
func Validate(query string) error {
	stripped := blockComments.ReplaceAllString(query, " ")
	stripped = lineComments.ReplaceAllString(stripped, " ")
	stripped = strings.TrimSpace(stripped)

	if stripped == "" {
		return fmt.Errorf("empty query")
	}
	if !selectPrefix.MatchString(stripped) {
		return fmt.Errorf("only SELECT statements are allowed")
	}
	if !fromKeyword.MatchString(stripped) {
		return fmt.Errorf("SELECT must read from a table (missing FROM)")
	}
	if m := forbidden.FindString(stripped); m != "" {
		return fmt.Errorf("forbidden keyword %q", strings.ToUpper(m))
	}

	switch n := strings.Count(stripped, ";"); {
	case n > 1:
		return fmt.Errorf("multiple statements are not allowed")
	case n == 1 && !strings.HasSuffix(stripped, ";"):
		return fmt.Errorf("statement terminator must be the final character")
	}
	return nil
}
