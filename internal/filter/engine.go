package filter

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"ContentFeed/internal/domain"
)

// Rule names reported in decisions.
const (
	RuleRequiredFields = "required_fields"
	RuleTitleLength    = "title_length"
	RuleMaxAge         = "max_age"
	RuleExclude        = "exclude_keyword"
	RuleInclude        = "include_keyword"
	RuleSpam           = "spam_indicator"
	RuleLanguage       = "language"
)

var functionWords = []string{
	" the ", " and ", " a ", " an ", " to ", " of ", " in ", " is ",
	" for ", " on ", " with ", " that ", " it ", " this ", " are ", " be ",
}

// Decision is the outcome of evaluating one candidate item.
type Decision struct {
	Accept bool
	Rule   string
	Reason string
}

func reject(rule, format string, args ...any) Decision {
	return Decision{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

type spamPattern struct {
	source string
	expr   *regexp.Regexp
}

// Compiled is a rule set prepared for repeated evaluation. It is immutable
// once built.
type Compiled struct {
	rules   domain.FilterRuleSet
	exclude []string
	include []string
	spam    []spamPattern
}

// Compile folds keywords and compiles spam patterns. Invalid patterns are
// skipped with a warning.
func Compile(rules domain.FilterRuleSet, logger *slog.Logger) *Compiled {
	rules = rules.Clone()
	c := &Compiled{rules: rules}
	fold := cases.Fold()

	for _, kw := range rules.ExcludeKeywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			c.exclude = append(c.exclude, fold.String(kw))
		}
	}
	for _, kw := range rules.IncludeKeywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			c.include = append(c.include, fold.String(kw))
		}
	}
	for _, pattern := range rules.SpamIndicators {
		expr, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			if logger != nil {
				logger.Warn("skip invalid spam pattern", "pattern", pattern, "error", err)
			}
			continue
		}
		c.spam = append(c.spam, spamPattern{source: pattern, expr: expr})
	}
	return c
}

// Rules returns a copy of the source rule set.
func (c *Compiled) Rules() domain.FilterRuleSet {
	return c.rules.Clone()
}

// Evaluate applies the rules in order and stops at the first failure.
func Evaluate(item domain.CandidateItem, c *Compiled, now time.Time) Decision {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return reject(RuleRequiredFields, "missing title or link")
	}

	length := utf8.RuneCountInString(title)
	if length < c.rules.MinTitleLength || length > c.rules.MaxTitleLength {
		return reject(RuleTitleLength, "title length %d outside [%d, %d]", length, c.rules.MinTitleLength, c.rules.MaxTitleLength)
	}

	if !item.PublishedAt.IsZero() {
		age := now.Sub(item.PublishedAt).Hours()
		if age > float64(c.rules.MaxAgeHours) {
			return reject(RuleMaxAge, "article age %.1fh exceeds max age %dh", age, c.rules.MaxAgeHours)
		}
	}

	fold := cases.Fold()
	haystack := fold.String(title + " " + item.Body)

	for _, kw := range c.exclude {
		if strings.Contains(haystack, kw) {
			return reject(RuleExclude, "contains excluded keyword %q", kw)
		}
	}

	if len(c.include) > 0 {
		matched := false
		for _, kw := range c.include {
			if strings.Contains(haystack, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return reject(RuleInclude, "no include keyword matched")
		}
	}

	for _, p := range c.spam {
		if p.expr.MatchString(title) {
			return reject(RuleSpam, "title matches spam pattern %q", p.source)
		}
	}

	if !looksEnglish(title) && !looksEnglish(item.Body) {
		return reject(RuleLanguage, "no common English words found")
	}

	return Decision{Accept: true}
}

func looksEnglish(text string) bool {
	padded := " " + strings.ToLower(strings.Join(strings.Fields(text), " ")) + " "
	for _, w := range functionWords {
		if strings.Contains(padded, w) {
			return true
		}
	}
	return false
}
