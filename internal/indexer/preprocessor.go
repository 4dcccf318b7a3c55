package indexer

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

// Normalize converts CRLF and CR line endings to LF and drops NUL bytes.
func Normalize(text string) string {
	return lineEndings.Replace(text)
}
