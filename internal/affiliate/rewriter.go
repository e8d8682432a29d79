package affiliate

import (
	"net/url"
	"sort"
	"strings"

	"ContentFeed/internal/config"
	"ContentFeed/internal/ports"
)

const defaultNetworkEndpoint = "https://go.skimresources.com/"

// Program names reported by ProgramName.
const (
	ProgramAmazon    = "Amazon"
	ProgramSkimlinks = "Skimlinks"
	ProgramAffiliate = "Affiliate"
	ProgramDirect    = "Direct"
)

type customPattern struct {
	pattern  string
	template string
}

// Rewriter turns outbound article links into monetized links. It never
// fails: anything it cannot handle is returned unchanged.
type Rewriter struct {
	amazonEnabled bool
	amazonTags    map[string]string

	customEnabled  bool
	customPatterns []customPattern

	networkEnabled  bool
	networkEndpoint string
	publisherID     string
}

var _ ports.LinkRewriter = (*Rewriter)(nil)

// NewRewriter builds a rewriter from configuration.
func NewRewriter(cfg config.AffiliateConfig) *Rewriter {
	r := &Rewriter{
		amazonEnabled:   cfg.Amazon.Enabled,
		amazonTags:      map[string]string{},
		customEnabled:   cfg.Custom.Enabled,
		networkEnabled:  cfg.Network.Enabled,
		networkEndpoint: strings.TrimSpace(cfg.Network.Endpoint),
		publisherID:     strings.TrimSpace(cfg.Network.PublisherID),
	}
	if r.networkEndpoint == "" {
		r.networkEndpoint = defaultNetworkEndpoint
	}

	for domain, tag := range cfg.Amazon.Regions {
		if tag = strings.TrimSpace(tag); tag != "" {
			r.amazonTags[normalizeHost(domain)] = tag
		}
	}

	for pattern, template := range cfg.Custom.Patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" || template == "" {
			continue
		}
		r.customPatterns = append(r.customPatterns, customPattern{pattern: pattern, template: template})
	}
	sort.Slice(r.customPatterns, func(i, j int) bool {
		return r.customPatterns[i].pattern < r.customPatterns[j].pattern
	})

	return r
}

// Rewrite returns the monetized variant of raw, trying Amazon, custom
// patterns and the redirect network in that order.
func (r *Rewriter) Rewrite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := normalizeHost(u.Hostname())

	q := u.Query()
	if r.isAmazonHost(host) && (q.Has("tag") || q.Has("linkCode")) {
		return raw
	}

	if r.amazonEnabled {
		if tag, ok := r.amazonTags[host]; ok {
			q.Set("tag", tag)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}

	if r.customEnabled {
		for _, p := range r.customPatterns {
			if strings.Contains(host, p.pattern) {
				return strings.Replace(p.template, "{url}", url.QueryEscape(raw), 1)
			}
		}
	}

	if r.networkEnabled && r.publisherID != "" {
		return r.networkEndpoint + "?id=" + url.QueryEscape(r.publisherID) + "&url=" + url.QueryEscape(raw)
	}

	return raw
}

// IsAffiliateLink reports whether raw already carries affiliate markers.
func IsAffiliateLink(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	q := u.Query()
	if q.Has("tag") || q.Has("linkCode") || q.Has("id") {
		return true
	}
	host := strings.ToLower(u.Hostname())
	return strings.Contains(host, "skimresources.com") ||
		strings.Contains(host, "amazon.") ||
		strings.Contains(host, "go2cloud.org")
}

// ProgramName names the affiliate program behind raw, for reporting.
func ProgramName(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ProgramDirect
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "amazon."):
		return ProgramAmazon
	case strings.Contains(host, "skimresources.com"):
		return ProgramSkimlinks
	case IsAffiliateLink(raw):
		return ProgramAffiliate
	default:
		return ProgramDirect
	}
}

// isAmazonHost matches configured storefronts and any amazon.* domain.
func (r *Rewriter) isAmazonHost(host string) bool {
	if _, ok := r.amazonTags[host]; ok {
		return true
	}
	return strings.HasPrefix(host, "amazon.") || strings.Contains(host, ".amazon.")
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
