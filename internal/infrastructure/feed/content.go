package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// htmlToText strips markup and collapses whitespace. Plain text passes
// through with entities decoded.
func htmlToText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}

	var b strings.Builder
	collectText(doc.Selection, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "#text":
			b.WriteString(s.Text())
			b.WriteByte(' ')
		case "script", "style", "noscript", "iframe":
		default:
			collectText(s, b)
		}
	})
}

// longestText reduces each field to text and keeps the one with the most words.
func longestText(fields []string) string {
	var best string
	bestWords := -1
	for _, raw := range fields {
		text := htmlToText(raw)
		if words := len(strings.Fields(text)); words > bestWords {
			best, bestWords = text, words
		}
	}
	return best
}

// extractImage prefers an <img> in the entry markup, then the feed's own
// image metadata.
func extractImage(entry *gofeed.Item) string {
	for _, raw := range []string{entry.Content, entry.Description} {
		if src := firstImageSrc(raw); src != "" {
			return src
		}
	}

	if entry.Image != nil && isHTTP(entry.Image.URL) {
		return strings.TrimSpace(entry.Image.URL)
	}

	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && isHTTP(enc.URL) {
			return strings.TrimSpace(enc.URL)
		}
	}

	if media, ok := entry.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if medium := ext.Attrs["medium"]; medium != "" && medium != "image" {
					continue
				}
				if url := ext.Attrs["url"]; isHTTP(url) {
					return strings.TrimSpace(url)
				}
			}
		}
		for _, group := range media["group"] {
			for _, child := range group.Children["content"] {
				if url := child.Attrs["url"]; isHTTP(url) {
					return strings.TrimSpace(url)
				}
			}
		}
	}
	return ""
}

func firstImageSrc(raw string) string {
	if !strings.Contains(raw, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	var src string
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if v, _ := img.Attr("src"); isHTTP(v) {
			src = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return src
}

func isHTTP(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
