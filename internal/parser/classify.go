package parser

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

// LineKind is the outcome of classifying one source line.
type LineKind int

const (
	KindUnmatched LineKind = iota
	KindIgnore
	KindGroup
	KindRecord
	KindContinuation
)

func (k LineKind) String() string {
	switch k {
	case KindIgnore:
		return "ignored"
	case KindGroup:
		return "group"
	case KindRecord:
		return "parsed"
	case KindContinuation:
		return "continuation"
	default:
		return "unmatched"
	}
}

// Match is what a Matcher found on a line.
type Match struct {
	Kind   LineKind
	Date   string // raw date token, record lines only
	Group  string // group header, or the group carried by a dated line
	Record models.Record
	Method string
}

// Matcher recognises one kind of line. ok is false when the line is not
// covered by this matcher and the next one should be tried.
type Matcher interface {
	Name() string
	Match(line string) (m Match, ok bool)
}

// Grammar is an ordered list of matchers; the first one that accepts a line wins.
type Grammar struct {
	Matchers []Matcher
}

// Classify runs the matchers in order over a single normalized line.
func (g *Grammar) Classify(line string) Match {
	for _, m := range g.Matchers {
		if res, ok := m.Match(line); ok {
			if res.Method == "" {
				res.Method = m.Name()
			}
			return res
		}
	}
	return Match{Kind: KindUnmatched}
}

// noiseMatcher drops headers, footers, page markers and any text that
// mentions one of its terms. Line grammars build it from header terms;
// parsers apply a second one, built from noise terms, to names only.
type noiseMatcher struct {
	patterns []*regexp.Regexp
	terms    *ahocorasick.Matcher
}

func newNoiseMatcher(patterns []*regexp.Regexp, terms []string) *noiseMatcher {
	m := &noiseMatcher{patterns: patterns}
	var upper []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			upper = append(upper, strings.ToUpper(t))
		}
	}
	if len(upper) > 0 {
		m.terms = ahocorasick.NewStringMatcher(upper)
	}
	return m
}

func (m *noiseMatcher) Name() string { return "ignore" }

func (m *noiseMatcher) Match(line string) (Match, bool) {
	if m.isNoise(line) {
		return Match{Kind: KindIgnore}, true
	}
	return Match{}, false
}

func (m *noiseMatcher) isNoise(text string) bool {
	for _, re := range m.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	if m.terms != nil && len(m.terms.Match([]byte(strings.ToUpper(text)))) > 0 {
		return true
	}
	return false
}

// groupMatcher recognises section titles that change the carried group.
type groupMatcher struct {
	groups map[string]string
}

func newGroupMatcher(groups []string) *groupMatcher {
	m := &groupMatcher{groups: make(map[string]string, len(groups))}
	for _, g := range groups {
		m.groups[strings.ToUpper(strings.TrimSpace(g))] = g
	}
	return m
}

func (m *groupMatcher) Name() string { return "group" }

func (m *groupMatcher) Match(line string) (Match, bool) {
	if g, ok := m.groups[strings.ToUpper(strings.TrimSpace(line))]; ok {
		return Match{Kind: KindGroup, Group: g}, true
	}
	return Match{}, false
}

// vocabulary finds the longest known term inside a line, case-insensitively,
// optionally requiring a digit right after it.
type vocabulary struct {
	terms []string // longest first
}

func newVocabulary(terms []string) vocabulary {
	sorted := append([]string(nil), terms...)
	// insertion sort keeps ties in their configured order
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len([]rune(sorted[j])) > len([]rune(sorted[j-1])); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return vocabulary{terms: sorted}
}

// find returns the canonical term and its byte span in text. When
// digitAfter is set, the term must be followed by optional spaces and a digit.
// The leftmost qualifying occurrence wins, longer terms breaking ties.
func (v vocabulary) find(text string, digitAfter bool) (term string, start, end int, ok bool) {
	lower := strings.ToLower(text)
	best := -1
	for _, t := range v.terms {
		lt := strings.ToLower(t)
		from := 0
		for {
			idx := strings.Index(lower[from:], lt)
			if idx < 0 {
				break
			}
			s := from + idx
			e := s + len(lt)
			if !digitAfter || digitFollows(text, e) {
				if best < 0 || s < best {
					best, term, start, end = s, t, s, e
				}
				break
			}
			from = s + 1
		}
	}
	return term, start, end, best >= 0
}

func digitFollows(text string, pos int) bool {
	rest := strings.TrimLeft(text[pos:], " \t")
	return rest != "" && rest[0] >= '0' && rest[0] <= '9'
}
