package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

// Fee list ("Mapa de Honorários - Detalhe") line layout:
//
//	DATE  PROCESS+NAME  SERVICE  ENTITY_CODE ENTITY  ACT_CODE+PROCEDURE  [% NrK]  QTY  AMOUNT
//
// Date format: DD-MM-YY. The process number is glued to the patient name and
// the act code is glued to the procedure text.
// Example line: "03-01-24 123456MARIA SILVA Ortopedia 12 ADSE 10012345Consulta 1 50.00"
var (
	feeLinePattern = regexp.MustCompile(
		`^(\d{2}-\d{2}-\d{2,4})\s+(\d+)(.+?)\s+-?\d+\s+(-?[\d,]+\.\d{2})$`,
	)

	// Same layout without the leading date.
	feeContinuationPattern = regexp.MustCompile(
		`^(\d+)(.+?)\s+-?\d+\s+(-?[\d,]+\.\d{2})$`,
	)

	actCodePattern   = regexp.MustCompile(`\d{5,}`)
	actSuffixPattern = regexp.MustCompile(`^(?:PT|T)\p{L}`)
)

// feeIgnorePatterns covers the report banner, page furniture and totals.
// "Hospital" is anchored so payer entities such as "Hospital Garcia De Orta" survive.
var feeIgnorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^Hospital `),
	regexp.MustCompile(`Mapa de Honor`),
	regexp.MustCompile(`PS_PA_009`),
	regexp.MustCompile(`Utilizador:`),
	regexp.MustCompile(`Pág\.\s*(por|:)?\s*\d`),
	regexp.MustCompile(`Data:\s*\d{4}`),
	regexp.MustCompile(`Hora:\s*\d`),
	regexp.MustCompile(`Ano:\s*\d`),
	regexp.MustCompile(`Prestador de Serviços`),
	regexp.MustCompile(`Código fornecedor`),
	regexp.MustCompile(`1M - Processamento`),
	regexp.MustCompile(`Datas (Activ|Factur)`),
	regexp.MustCompile(`Valores do Período`),
	regexp.MustCompile(`^Data\s+Doente`),
	regexp.MustCompile(`Total (do Período|Geral|Valor)`),
}

// feeMatcher recognises fee lines, dated or not.
type feeMatcher struct {
	dated    bool
	services vocabulary
	junk     []string
}

func (m *feeMatcher) Name() string {
	if m.dated {
		return "fees-dated"
	}
	return "fees-continuation"
}

func (m *feeMatcher) Match(line string) (Match, bool) {
	if m.dated {
		g := feeLinePattern.FindStringSubmatch(line)
		if g == nil {
			return Match{}, false
		}
		rec, ok := m.build(g[2], g[3], g[4])
		if !ok {
			return Match{}, false
		}
		return Match{Kind: KindRecord, Date: g[1], Record: rec}, true
	}

	if startsWithDate(line) {
		return Match{}, false
	}
	g := feeContinuationPattern.FindStringSubmatch(line)
	if g == nil {
		return Match{}, false
	}
	// Undated lines are only trusted when the service column is present.
	if _, _, _, found := m.services.find(g[2], true); !found {
		return Match{}, false
	}
	rec, ok := m.build(g[1], g[2], g[3])
	if !ok {
		return Match{}, false
	}
	return Match{Kind: KindContinuation, Record: rec}, true
}

func (m *feeMatcher) build(process, middle, amount string) (models.Record, bool) {
	value, err := NormalizeAmount(amount)
	if err != nil {
		return models.Record{}, false
	}

	middle = strings.TrimSpace(middle)
	name, rest := middle, ""
	var service string
	if term, start, end, ok := m.services.find(middle, true); ok {
		service = term
		name, rest = middle[:start], middle[end:]
	}
	entity, procedure := splitEntityProcedure(rest)

	return models.Record{
		ProcessID: process,
		Name:      CleanName(name, m.junk),
		Amount:    &value,
		Procedure: procedure,
		Specialty: service,
		Entity:    entity,
	}, true
}

// splitEntityProcedure separates the payer entity from the procedure in the
// text following the service column: "<entity code> <entity> <act code><procedure>".
func splitEntityProcedure(rest string) (entity, procedure string) {
	parts := strings.Fields(rest)
	if len(parts) < 2 {
		return "", ""
	}
	// drop the numeric entity code
	withoutCode := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), parts[0]))

	loc := actCodePattern.FindStringIndex(withoutCode)
	if loc == nil {
		return withoutCode, ""
	}
	entity = strings.TrimSpace(withoutCode[:loc[0]])
	after := withoutCode[loc[1]:]

	// PT and T suffixes belong to the act code when glued to the text.
	if actSuffixPattern.MatchString(after) {
		if strings.HasPrefix(after, "PT") {
			after = after[2:]
		} else {
			after = after[1:]
		}
	}
	return entity, CleanProcedure(after)
}

func newFeesGrammar(p models.Profile) *Grammar {
	services := newVocabulary(p.Specialties)
	return &Grammar{Matchers: []Matcher{
		newNoiseMatcher(feeIgnorePatterns, p.HeaderTerms),
		newGroupMatcher(p.Groups),
		&feeMatcher{dated: true, services: services, junk: p.JunkFragments},
		&feeMatcher{dated: false, services: services, junk: p.JunkFragments},
	}}
}
