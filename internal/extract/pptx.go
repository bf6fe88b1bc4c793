package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	slidePath  = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	aParagraph = regexp.MustCompile(`(?s)<a:p[ >].*?</a:p>`)
	atTag      = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
)

// extractPPTX returns slide text in slide order (slide2 before slide10), one
// line per paragraph, slides separated by a blank line.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", fmt.Errorf("extract PPTX: %w", err)
	}
	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePath.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slideXML, err := readEntry(f)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		if text := strings.Join(paragraphs(slideXML, aParagraph, atTag), "\n"); text != "" {
			slides = append(slides, slide{num: num, text: text})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })
	texts := make([]string, len(slides))
	for i, s := range slides {
		texts[i] = s.text
	}
	return strings.Join(texts, "\n\n"), nil
}
