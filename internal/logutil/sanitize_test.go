package logutil

import "testing"

func TestSanitizeForLog(t *testing.T) {
	cases := map[string]string{
		"plain text":                 "plain text",
		"line1\nline2":               "line1 line2",
		"a\r\nb":                     "a  b",
		"tab\there":                  "tab here",
		"bell\x07and\x1b[31mescape":  "belland[31mescape",
		"":                           "",
		"sit-db.internal:3306 (ok)":  "sit-db.internal:3306 (ok)",
		"fake entry\n2026/01/01 ...": "fake entry 2026/01/01 ...",
	}
	for in, want := range cases {
		if got := SanitizeForLog(in); got != want {
			t.Errorf("SanitizeForLog(%q) = %q, want %q", in, got, want)
		}
	}
}
