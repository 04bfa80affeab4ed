package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// ToText converts a rendered HTML fragment to plain text for terminal
// output. Entities are decoded and tags stripped.
func ToText(s string) string {
	text := html2text.HTML2TextWithOptions(s, html2text.WithUnixLineBreaks())
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
