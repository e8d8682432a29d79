package llm

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxTags            = 8
	fallbackSummaryLen = 280
	fallbackCategory   = "General"
	fallbackTag        = "general"
)

// Categories are the labels the categorizer is asked to choose from.
var Categories = []string{"Technology", "Business", "Lifestyle", "Entertainment", "Science", "Politics", "Sports", "Health"}

var (
	htmlHeadingExpr = regexp.MustCompile(`(?is)<h[1-6][^>]*>(.*?)</h[1-6]\s*>`)
	htmlTagExpr     = regexp.MustCompile(`(?s)<[^>]+>`)
	mdHeadingExpr   = regexp.MustCompile(`^(?:#{1,6}[ \t]+)+(.*)$`)
	boldHeadingExpr = regexp.MustCompile(`^\*\*([^*]+?)\*\*:?$`)
	blankRunExpr    = regexp.MustCompile(`\n{3,}`)
	spaceRunExpr    = regexp.MustCompile(`[ \t]+`)
	listMarkerExpr  = regexp.MustCompile(`^(?:\d+[.)]\s*|[-*•]\s*)`)
	labelExpr       = regexp.MustCompile(`(?i)^(?:tags?|keywords?|category)\s*:\s*`)
)

// NormalizeRewrite turns the heading variants models produce into one
// canonical "## Title" line and tidies whitespace.
func NormalizeRewrite(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = htmlHeadingExpr.ReplaceAllStringFunc(text, func(m string) string {
		inner := htmlHeadingExpr.FindStringSubmatch(m)[1]
		inner = htmlTagExpr.ReplaceAllString(inner, "")
		return "\n## " + strings.TrimSpace(inner) + "\n"
	})

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(spaceRunExpr.ReplaceAllString(line, " "))
		if heading, ok := headingText(line); ok {
			if heading == "" {
				continue
			}
			out = append(out, "", "## "+heading, "")
			continue
		}
		out = append(out, line)
	}

	joined := blankRunExpr.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	return strings.TrimSpace(joined)
}

func headingText(line string) (string, bool) {
	if m := mdHeadingExpr.FindStringSubmatch(line); m != nil {
		return cleanHeading(m[1]), true
	}
	if m := boldHeadingExpr.FindStringSubmatch(line); m != nil {
		return cleanHeading(m[1]), true
	}
	return "", false
}

func cleanHeading(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "# ")
	s = strings.TrimSpace(strings.Trim(s, "*_"))
	return s
}

// parseTags reads a comma or newline separated tag list.
func parseTags(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})

	seen := map[string]struct{}{}
	tags := make([]string, 0, maxTags)
	for _, f := range fields {
		t := strings.TrimSpace(f)
		t = labelExpr.ReplaceAllString(t, "")
		t = listMarkerExpr.ReplaceAllString(t, "")
		t = strings.TrimLeft(t, "#")
		t = strings.Trim(t, " \t.\"'`*")
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, t)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// parseCategory maps a model answer onto one of Categories. Unknown labels
// are returned title-cased.
func parseCategory(text string) (string, error) {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = labelExpr.ReplaceAllString(line, "")
	line = strings.TrimFunc(line, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	if line == "" {
		return "", errors.New("empty category")
	}

	for _, c := range Categories {
		if strings.EqualFold(line, c) {
			return c, nil
		}
	}
	lower := strings.ToLower(line)
	for _, c := range Categories {
		if strings.Contains(lower, strings.ToLower(c)) {
			return c, nil
		}
	}
	return cases.Title(language.English).String(line), nil
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func truncateText(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}
