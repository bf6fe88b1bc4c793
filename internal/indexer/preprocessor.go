package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted text for chunking: line endings become \n,
// runs of horizontal whitespace collapse to one space, lines are trimmed, and
// blank runs collapse to a single paragraph break so the chunker can still see it.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	var b strings.Builder
	b.Grow(len(text))
	blank := false
	for _, line := range lines {
		line = collapseSpaces(line)
		if line == "" {
			blank = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
		blank = false
	}
	return b.String()
}

func collapseSpaces(line string) string {
	line = strings.TrimSpace(line)
	var b strings.Builder
	wasSpace := false
	for _, r := range line {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
