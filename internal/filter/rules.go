package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"ContentFeed/internal/domain"
)

// ErrInvalidRuleSet is returned when an update fails validation.
var ErrInvalidRuleSet = errors.New("invalid filter rule set")

// DefaultRules returns the seed rule set used until an operator changes it.
func DefaultRules() domain.FilterRuleSet {
	return domain.FilterRuleSet{
		MinTitleLength: 10,
		MaxTitleLength: 200,
		ExcludeKeywords: []string{
			// sponsored content
			"sponsored", "advertisement", "advertorial", "paid post", "promoted",
			// breaking news
			"breaking news", "live updates", "just in", "urgent",
			// clickbait
			"click here", "read more", "learn more", "find out",
			// subscriptions
			"subscribe", "newsletter", "sign up", "join now",
			// marketing
			"limited time", "act now", "don't miss out", "exclusive",
			// galleries and video
			"photo gallery", "slideshow", "pictures", "images",
			"video", "watch", "see what happened",
		},
		IncludeKeywords: []string{
			"how to", "guide", "tips", "tricks", "tutorial", "step by step",
			"review", "comparison", "vs", "versus", "best", "top", "worst",
			"analysis", "explained", "why", "what is", "understanding",
			"technology", "tech", "software", "app", "platform", "tool",
			"ai", "artificial intelligence", "machine learning", "automation",
			"business", "finance", "investment", "market", "economy",
			"startup", "entrepreneur", "strategy", "marketing", "growth",
			"health", "fitness", "lifestyle", "wellness", "diet", "exercise",
			"travel", "vacation", "destination", "trip",
			"product", "service", "solution", "feature", "benefit",
			"industry", "sector", "trend", "innovation", "future",
			"news", "announces", "launches", "releases", "introduces",
			"partnership", "acquisition", "merger", "funding",
			"update", "new", "latest", "recent", "announcement",
		},
		MaxAgeHours: 72,
		SpamIndicators: []string{
			`!{2,}`,
			`\?{2,}`,
			`\d{1,2}%\s*off`,
			`free\s+download`,
			`limited\s+time`,
			`act\s+now`,
			`don't\s+miss`,
			`exclusive\s+offer`,
			`one\s+time\s+only`,
		},
	}
}

// RuleSetUpdate is an operator-submitted replacement rule set. Pointer
// fields distinguish "missing" from zero values.
type RuleSetUpdate struct {
	MinTitleLength  *int      `json:"MIN_TITLE_LENGTH" validate:"required,gte=0"`
	MaxTitleLength  *int      `json:"MAX_TITLE_LENGTH" validate:"required,gte=0"`
	ExcludeKeywords *[]string `json:"EXCLUDE_KEYWORDS" validate:"required"`
	IncludeKeywords *[]string `json:"INCLUDE_KEYWORDS" validate:"required"`
	MaxAgeHours     *int      `json:"MAX_AGE_HOURS" validate:"required,gte=0"`
	SpamIndicators  *[]string `json:"SPAM_INDICATORS" validate:"required"`
}

// UpdateFrom wraps a complete rule set as an update.
func UpdateFrom(rules domain.FilterRuleSet) RuleSetUpdate {
	r := rules.Clone()
	return RuleSetUpdate{
		MinTitleLength:  &r.MinTitleLength,
		MaxTitleLength:  &r.MaxTitleLength,
		ExcludeKeywords: &r.ExcludeKeywords,
		IncludeKeywords: &r.IncludeKeywords,
		MaxAgeHours:     &r.MaxAgeHours,
		SpamIndicators:  &r.SpamIndicators,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var jsonNames = map[string]string{
	"MinTitleLength":  "MIN_TITLE_LENGTH",
	"MaxTitleLength":  "MAX_TITLE_LENGTH",
	"ExcludeKeywords": "EXCLUDE_KEYWORDS",
	"IncludeKeywords": "INCLUDE_KEYWORDS",
	"MaxAgeHours":     "MAX_AGE_HOURS",
	"SpamIndicators":  "SPAM_INDICATORS",
}

// Validate checks presence, sign and title bounds and returns the
// resulting rule set.
func (u RuleSetUpdate) Validate() (domain.FilterRuleSet, error) {
	if err := validate.Struct(u); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			name := jsonNames[fe.StructField()]
			switch fe.Tag() {
			case "required":
				return domain.FilterRuleSet{}, fmt.Errorf("%w: missing required field: %s", ErrInvalidRuleSet, name)
			case "gte":
				return domain.FilterRuleSet{}, fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidRuleSet, name)
			}
		}
		return domain.FilterRuleSet{}, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}

	if *u.MinTitleLength >= *u.MaxTitleLength {
		return domain.FilterRuleSet{}, fmt.Errorf("%w: MIN_TITLE_LENGTH must be less than MAX_TITLE_LENGTH", ErrInvalidRuleSet)
	}

	rules := domain.FilterRuleSet{
		MinTitleLength:  *u.MinTitleLength,
		MaxTitleLength:  *u.MaxTitleLength,
		ExcludeKeywords: cleanList(*u.ExcludeKeywords),
		IncludeKeywords: cleanList(*u.IncludeKeywords),
		MaxAgeHours:     *u.MaxAgeHours,
		SpamIndicators:  cleanList(*u.SpamIndicators),
	}
	return rules, nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
