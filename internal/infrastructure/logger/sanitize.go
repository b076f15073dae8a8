package logger

import (
	"fmt"
	"strings"
)

// Sanitize escapes control characters in user-controlled strings (filenames,
// error detail echoed from external processes) before they reach the log.
// Newlines could forge log entries, ANSI escapes could manipulate terminals,
// null bytes could truncate lines. Unicode text passes through untouched.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 32 || r == 127:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
