// Package strsan sanitizes untrusted strings before they are interpolated
// into a log line: dispatched URLs (built from a caller-supplied path list)
// and transport error strings (which can echo back response bytes) both
// cross a trust boundary on their way into pkg/reactor's debug logging.
package strsan

import (
	"strings"
	"unicode"
)

// maxSanitizedLength bounds how much of one sanitized string reaches a log
// line; a multi-megabyte response body turned into an error string
// shouldn't be able to flood the log.
const maxSanitizedLength = 100

// SanitizeForLog escapes newlines, carriage returns and backslashes,
// replaces other control and non-printable characters with '?', and
// truncates long input so a single untrusted string can't
// forge extra log lines or fields.
func SanitizeForLog(s string) string {
	if s == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\n':
			result.WriteString("\\n")
		case r == '\r':
			result.WriteString("\\r")
		case r == '\\':
			result.WriteString("\\\\")
		case unicode.IsControl(r):
			result.WriteString("?")
		case unicode.IsPrint(r):
			result.WriteRune(r)
		default:
			result.WriteString("?")
		}
	}

	if result.Len() > maxSanitizedLength {
		return result.String()[:maxSanitizedLength] + "...[truncated]"
	}
	return result.String()
}
