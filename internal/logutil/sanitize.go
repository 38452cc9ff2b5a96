// Package logutil keeps caller-supplied text safe to embed in log lines.
package logutil

import "strings"

// SanitizeForLog flattens newlines and strips control characters so a
// caller-supplied string cannot forge extra log entries or corrupt the
// terminal.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r < 32:
			// drop other control characters
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
