package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// maxEntrySize caps a single decompressed zip entry.
const maxEntrySize = 64 << 20

var anyTag = regexp.MustCompile(`<[^>]+>`)

func openZip(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip: %w", err)
	}
	return zr, nil
}

func readEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	if len(data) > maxEntrySize {
		return "", fmt.Errorf("%s exceeds %d bytes", f.Name, maxEntrySize)
	}
	return string(data), nil
}

func findEntry(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// paragraphs returns the text of each paragraph matched by paraRe, one string
// per paragraph. Text runs inside a paragraph (matched by runRe, first group)
// are concatenated as-is since word processors split words across runs.
func paragraphs(xml string, paraRe, runRe *regexp.Regexp) []string {
	var out []string
	for _, para := range paraRe.FindAllString(xml, -1) {
		var b strings.Builder
		for _, run := range runRe.FindAllStringSubmatch(para, -1) {
			b.WriteString(unescapeXML(run[1]))
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
