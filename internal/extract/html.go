package extract

import (
	"context"
	"html"
	"io"
	"regexp"
	"strings"
)

// HTML strips markup and keeps readable text, one block per line.
type HTML struct{}

// Extract implements Extractor.
func (HTML) Extract(ctx context.Context, name string, r io.Reader) (string, error) {
	raw, err := Plaintext{}.Extract(ctx, name, r)
	if err != nil {
		return "", err
	}
	return stripHTML(raw), nil
}

var (
	invisibleBlocks = regexp.MustCompile(`(?is)<(script|style|noscript|head|svg)[^>]*>.*?</(script|style|noscript|head|svg)>`)
	htmlComments    = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockBoundaries = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article|br|hr)\b[^>]*>`)
	anyTag          = regexp.MustCompile(`<[^>]+>`)
	spaceRuns       = regexp.MustCompile(`[ \t]+`)
)

func stripHTML(s string) string {
	s = invisibleBlocks.ReplaceAllString(s, "")
	s = htmlComments.ReplaceAllString(s, "")
	s = blockBoundaries.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = spaceRuns.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
