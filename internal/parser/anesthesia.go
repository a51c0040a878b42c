package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

// Anaesthetised patients listing line layout:
//
//	DATE  GROUP  COUNT  PREFIX/PROCESS  NAME  SPECIALTY  CODE+PROCEDURE  QTY  X/Y
//
// Continuation lines start at PREFIX/PROCESS. The trailing "QTY X/Y" pair
// (e.g. "1 N/S") only marks where the procedure ends.
// Example line: "17-05-2021 Bloco Central 3 HCIS/123456 ANA MARIA COSTA Ortopedia 31020 Artroscopia do joelho 1 N/S"
var (
	anesthesiaAnchor = regexp.MustCompile(`\s+(-?\d+)\s+([A-Z])/([A-Z])\s*$`)

	anesthesiaDatedHead = regexp.MustCompile(
		`^(\S+)\s+(.+?)\s+(\d+)\s+((?:CCC|CCO|HCIS)/\d+)\s+(.+)$`,
	)
	anesthesiaContinuationHead = regexp.MustCompile(
		`^((?:CCC|CCO|HCIS)/\d+)\s+(.+)$`,
	)

	procedureCodePattern = regexp.MustCompile(`^\s*(\d{3,})(?:PT|T)?\s*`)
)

var anesthesiaIgnorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^listagem de doentes`),
	regexp.MustCompile(`(?i)^data:\s*\d`),
	regexp.MustCompile(`(?i)p[áa]g(ina|\.)\s*:?\s*\d+`),
	regexp.MustCompile(`(?i)^data\s+(grupo|sala)`),
	regexp.MustCompile(`(?i)fim da listagem`),
	regexp.MustCompile(`(?i)^total\b`),
}

// anesthesiaMatcher slices an anaesthesia line from the right: anchor
// first, then specialty, then name and procedure around it.
type anesthesiaMatcher struct {
	dated       bool
	specialties vocabulary
	junk        []string
	keepPrefix  bool
}

func (m *anesthesiaMatcher) Name() string {
	if m.dated {
		return "anesthesia-dated"
	}
	return "anesthesia-continuation"
}

func (m *anesthesiaMatcher) Match(line string) (Match, bool) {
	loc := anesthesiaAnchor.FindStringIndex(line)
	if loc == nil {
		return Match{}, false
	}
	body := line[:loc[0]]

	if m.dated {
		g := anesthesiaDatedHead.FindStringSubmatch(body)
		if g == nil || !startsWithDate(g[1]) {
			return Match{}, false
		}
		rec, ok := m.build(g[4], g[5])
		if !ok {
			return Match{}, false
		}
		rec.Group = strings.TrimSpace(g[2])
		return Match{Kind: KindRecord, Date: g[1], Group: rec.Group, Record: rec}, true
	}

	g := anesthesiaContinuationHead.FindStringSubmatch(body)
	if g == nil {
		return Match{}, false
	}
	rec, ok := m.build(g[1], g[2])
	if !ok {
		return Match{}, false
	}
	return Match{Kind: KindContinuation, Record: rec}, true
}

func (m *anesthesiaMatcher) build(process, rest string) (models.Record, bool) {
	term, start, end, ok := m.specialties.find(rest, true)
	if !ok {
		return models.Record{}, false
	}

	rec := models.Record{
		ProcessID: processID(process, m.keepPrefix),
		Name:      CleanName(rest[:start], m.junk),
		Specialty: term,
	}
	after := rest[end:]
	if c := procedureCodePattern.FindStringSubmatchIndex(after); c != nil {
		rec.ProcedureCode = after[c[2]:c[3]]
		after = after[c[1]:]
	}
	rec.Procedure = CleanProcedure(after)
	return rec, true
}

func newAnesthesiaGrammar(p models.Profile) *Grammar {
	specialties := newVocabulary(p.Specialties)
	return &Grammar{Matchers: []Matcher{
		newNoiseMatcher(anesthesiaIgnorePatterns, p.HeaderTerms),
		newGroupMatcher(p.Groups),
		&anesthesiaMatcher{dated: true, specialties: specialties, junk: p.JunkFragments, keepPrefix: p.KeepPrefix},
		&anesthesiaMatcher{dated: false, specialties: specialties, junk: p.JunkFragments, keepPrefix: p.KeepPrefix},
	}}
}

// processID renders a PREFIX/digits token as digits only, or keeps the
// prefix when the target sheet stores it.
func processID(token string, keepPrefix bool) string {
	token = strings.TrimSpace(token)
	if !keepPrefix {
		return DigitsOnly(token)
	}
	if i := strings.Index(token, "/"); i > 0 {
		return strings.ToUpper(token[:i]) + "/" + DigitsOnly(token[i+1:])
	}
	return DigitsOnly(token)
}
