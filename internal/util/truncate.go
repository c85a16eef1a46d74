package util

import (
	"fmt"
	"unicode/utf8"
)

// DefaultLogMaxLen caps free-text fields written to the execution log (4KB).
const DefaultLogMaxLen = 4096

// TruncateLog cuts s to at most maxLen bytes without splitting a UTF-8 rune,
// appending a marker with the original size.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// ErrorText returns err's message capped at DefaultLogMaxLen, or "" for nil.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return TruncateLog(err.Error(), DefaultLogMaxLen)
}
