package domain

// FilterRuleSet is the runtime-configurable content filter. The field keys
// match the persisted configuration shape.
type FilterRuleSet struct {
	MinTitleLength  int      `json:"MIN_TITLE_LENGTH" yaml:"MIN_TITLE_LENGTH"`
	MaxTitleLength  int      `json:"MAX_TITLE_LENGTH" yaml:"MAX_TITLE_LENGTH"`
	ExcludeKeywords []string `json:"EXCLUDE_KEYWORDS" yaml:"EXCLUDE_KEYWORDS"`
	IncludeKeywords []string `json:"INCLUDE_KEYWORDS" yaml:"INCLUDE_KEYWORDS"`
	MaxAgeHours     int      `json:"MAX_AGE_HOURS" yaml:"MAX_AGE_HOURS"`
	SpamIndicators  []string `json:"SPAM_INDICATORS" yaml:"SPAM_INDICATORS"`
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (r FilterRuleSet) Clone() FilterRuleSet {
	out := r
	out.ExcludeKeywords = append([]string(nil), r.ExcludeKeywords...)
	out.IncludeKeywords = append([]string(nil), r.IncludeKeywords...)
	out.SpamIndicators = append([]string(nil), r.SpamIndicators...)
	if out.ExcludeKeywords == nil {
		out.ExcludeKeywords = []string{}
	}
	if out.IncludeKeywords == nil {
		out.IncludeKeywords = []string{}
	}
	if out.SpamIndicators == nil {
		out.SpamIndicators = []string{}
	}
	return out
}
