package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"golang.org/x/net/publicsuffix"
)

// RetailerTag derives the retailer tag of a product url, that is the first
// label of its registrable domain: "https://www.bestbuy.com/site/x" -> "bestbuy".
func RetailerTag(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("retailer tag: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("retailer tag: url %q has no host", rawURL)
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("retailer tag: %w", err)
	}
	label, _, _ := strings.Cut(domain, ".")
	return label, nil
}

type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry(strategies map[string]Strategy) Registry {
	return Registry{strategies: strategies}
}

// DefaultRegistry contains the strategies of every supported retailer.
func DefaultRegistry() Registry {
	return NewRegistry(map[string]Strategy{
		"bestbuy": bestbuy,
		"amazon":  amazon,
	})
}

// Lookup returns the strategy of a retailer, or a strategy that only yields
// sentinel facts when the retailer is not supported.
func (r Registry) Lookup(tag string) Strategy {
	s, ok := r.strategies[tag]
	if !ok {
		return unsupported
	}
	return s
}

func (r Registry) Supported(tag string) bool {
	_, ok := r.strategies[tag]
	return ok
}

// Tags returns the supported retailer tags in alphabetical order.
func (r Registry) Tags() []string {
	tags := make([]string, 0, len(r.strategies))
	for tag := range r.strategies {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Extract parses body and applies the strategy of the retailer. It never
// fails, an unparsable body yields sentinel facts.
func (r Registry) Extract(tag string, body []byte) Facts {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return unavailableFacts()
	}
	return r.Lookup(tag).Extract(doc)
}

const suggestThreshold = 0.8

// Suggest returns the supported retailer tag closest to tag, if any is close
// enough to be a likely typo or regional variant.
func (r Registry) Suggest(tag string) (string, bool) {
	best := ""
	bestScore := 0.0
	for _, candidate := range r.Tags() {
		score := matchr.JaroWinkler(strings.ToLower(tag), candidate, false)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	if bestScore < suggestThreshold {
		return "", false
	}
	return best, true
}
