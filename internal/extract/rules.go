package extract

import (
	"strconv"
	"strings"
	"unicode"

	"productchecker/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Rule looks up a single piece of text in a document. The boolean is false
// when the element the rule looks for is absent.
type Rule func(doc *goquery.Document) (string, bool)

// Text returns the text content of the first element matching selector.
func Text(selector string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		return htmlutil.GetText(sel.Nodes[0]), true
	}
}

// Attr returns the value of attr on the first element matching selector.
func Attr(selector, attr string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		return doc.Find(selector).First().Attr(attr)
	}
}

// StripLabels wraps rule so that the first matching prefix and suffix are cut
// off its normalized result, e.g. "Brand: Sony" -> "Sony".
func StripLabels(rule Rule, prefixes, suffixes []string) Rule {
	return func(doc *goquery.Document) (string, bool) {
		text, ok := rule(doc)
		if !ok {
			return "", false
		}
		text = htmlutil.Normalize(text)
		for _, p := range prefixes {
			if strings.HasPrefix(text, p) {
				text = strings.TrimPrefix(text, p)
				break
			}
		}
		for _, s := range suffixes {
			if strings.HasSuffix(text, s) {
				text = strings.TrimSuffix(text, s)
				break
			}
		}
		return text, true
	}
}

// FirstOf tries rules in order and returns the first non-empty normalized
// result.
func FirstOf(doc *goquery.Document, rules []Rule) (string, bool) {
	for _, rule := range rules {
		text, ok := rule(doc)
		if !ok {
			continue
		}
		text = htmlutil.Normalize(text)
		if text != "" {
			return text, true
		}
	}
	return "", false
}

// AnyPresent reports whether at least one element matches any of selectors.
func AnyPresent(doc *goquery.Document, selectors []string) bool {
	for _, s := range selectors {
		if doc.Find(s).Length() > 0 {
			return true
		}
	}
	return false
}

func isPriceLead(r rune) bool {
	return unicode.Is(unicode.Sc, r) || unicode.IsSpace(r) || unicode.IsLetter(r)
}

// ParsePrice parses text such as "$1,234.56" or "US$ 99". Leading currency
// symbols, currency codes and whitespace are skipped and "," grouping
// separators are removed. Anything else left over makes the text unparsable.
func ParsePrice(text string) (float64, bool) {
	text = strings.TrimLeftFunc(text, isPriceLead)
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if r != '.' && !unicode.IsDigit(r) {
			return 0, false
		}
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
