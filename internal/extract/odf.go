package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// odfContentPath holds the body of every OpenDocument package (.odt, .odp, .ods).
const odfContentPath = "content.xml"

var odfParagraph = regexp.MustCompile(`(?s)<text:(?:p|h)[ >].*?</text:(?:p|h)>`)

// extractODF returns one line per text:p or text:h element in document order.
// Nested spans and other inline markup are stripped.
func extractODF(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	f := findEntry(zr, odfContentPath)
	if f == nil {
		return "", fmt.Errorf("extract OpenDocument: %s not found", odfContentPath)
	}
	body, err := readEntry(f)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	var lines []string
	for _, para := range odfParagraph.FindAllString(body, -1) {
		text := strings.TrimSpace(unescapeXML(anyTag.ReplaceAllString(para, "")))
		if text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}
