// Package intent holds the keyword heuristics used to label replies and to
// offer follow-up prompts while the user types.
package intent

import (
	"regexp"
	"strings"
)

// Domain is the coarse topic of a message.
type Domain string

const (
	DomainCode     Domain = "code"
	DomainBusiness Domain = "business"
	DomainMath     Domain = "math"
	DomainGeneral  Domain = "general"
)

var (
	codeRe     = regexp.MustCompile(`code|function|import|const |class |return |=>`)
	businessRe = regexp.MustCompile(`business|strategy|market|finance|roi|plan`)
	mathRe     = regexp.MustCompile(`calculate|math|equation|physics|\d+[+\-*/]`)
)

// Classify labels text. Rules are checked in order: code, business, math.
func Classify(text string) Domain {
	lower := strings.ToLower(text)
	switch {
	case codeRe.MatchString(lower):
		return DomainCode
	case businessRe.MatchString(lower):
		return DomainBusiness
	case mathRe.MatchString(lower):
		return DomainMath
	}
	return DomainGeneral
}

// Icon is a one-glyph badge for a domain, for text front ends.
func (d Domain) Icon() string {
	switch d {
	case DomainCode:
		return ">_"
	case DomainBusiness:
		return "$"
	case DomainMath:
		return "∑"
	}
	return "*"
}

// DefaultSuggestions are offered for empty input.
var DefaultSuggestions = []string{
	"Explain quantum computing",
	"Write a React hook for fetching data",
	"Business strategy for a SaaS startup",
	"Analyze the plot of Inception",
}

var fallbackSuggestions = []string{"Tell me a fun fact", "Explain complex topic", "Write some code", "Help me plan"}

type suggestionRule struct {
	re          *regexp.Regexp
	suggestions []string
}

var suggestionRules = []suggestionRule{
	{regexp.MustCompile(`code|react|js|ts|function|hook|component`),
		[]string{"Write a custom hook", "Optimize React render", "Explain this code", "Debug TypeScript error"}},
	{regexp.MustCompile(`python|data|pandas|ai|ml`),
		[]string{"Analyze this dataset", "Python script for automation", "Explain Neural Networks", "Pandas DataFrame help"}},
	{regexp.MustCompile(`biz|money|finance|market|stock`),
		[]string{"Market analysis", "ROI calculation", "Business model canvas", "Investment strategies"}},
	{regexp.MustCompile(`write|edit|email|blog|post`),
		[]string{"Draft a professional email", "Write a blog post", "Edit for clarity", "Creative story intro"}},
	{regexp.MustCompile(`science|physic|math|calc`),
		[]string{"Explain Quantum Mechanics", "Solve this equation", "Calculus help", "Scientific method"}},
}

// Suggestions returns prompts related to what the user is typing. The first
// matching rule wins.
func Suggestions(input string) []string {
	lower := strings.ToLower(input)
	if lower == "" {
		return clone(DefaultSuggestions)
	}
	for _, r := range suggestionRules {
		if r.re.MatchString(lower) {
			return clone(r.suggestions)
		}
	}
	return clone(fallbackSuggestions)
}

func clone(s []string) []string { return append([]string(nil), s...) }
