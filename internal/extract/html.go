package extract

import (
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"docqa/internal/domain"
)

var blankBeforeNewline = regexp.MustCompile(`[ \t]+\n`)

// extractHTML keeps the readable blocks of a page (headings, paragraphs,
// list items, table cells). Pages without such blocks fall back to the body
// text.
func extractHTML(path string) (domain.ExtractedText, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ExtractedText{}, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return domain.ExtractedText{}, err
	}
	doc.Find("script, style, noscript, template").Remove()

	var parts []string
	blocks := 0
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	root := doc.Find("main, article")
	if root.Length() == 0 {
		root = doc.Selection
	}
	root.Find("h1,h2,h3,h4,h5,h6,p,li,td,th,pre,blockquote").Each(func(_ int, s *goquery.Selection) {
		// nested blocks are picked up on their own
		if s.Find("p,li,td,th,pre,blockquote").Length() > 0 {
			return
		}
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
			blocks++
		}
	})
	if blocks == 0 {
		if body := strings.TrimSpace(doc.Find("body").Text()); body != "" {
			parts = append(parts, body)
		}
	}
	text := strings.ReplaceAll(strings.Join(parts, "\n"), "\r", "")
	return domain.ExtractedText{Text: blankBeforeNewline.ReplaceAllString(text, "\n")}, nil
}
