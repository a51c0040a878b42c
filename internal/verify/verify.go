// Package verify cross-checks an extraction against the record count a
// report declares and hunts for records the main pass missed.
package verify

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
	"github.com/insightdelivered/medical-billing-extractor/internal/oracle"
	"github.com/insightdelivered/medical-billing-extractor/internal/parser"
)

// Source says where an expected total came from.
type Source string

const (
	SourceNone   Source = ""
	SourceFooter Source = "footer"
	SourceOracle Source = "oracle"
)

// Status is the outcome of comparing extracted and expected counts.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusMatch   Status = "match"
	StatusSurplus Status = "surplus"
	StatusDeficit Status = "deficit"
)

var totalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`n[oº°]\.?\s*(?:de\s+)?registos\s*[:\-]\s*(\d+)`),
	regexp.MustCompile(`total\s+(?:de\s+)?registos\s*[:\-]\s*(\d+)`),
	regexp.MustCompile(`total\s+(?:de\s+)?linhas\s*[:\-]\s*(\d+)`),
	regexp.MustCompile(`total\s*[:\-]\s*(\d+)\s*registos`),
	regexp.MustCompile(`\b(\d{2,4})\s+registos\b`),
	regexp.MustCompile(`\blinhas\s*[:\-]\s*(\d+)`),
	regexp.MustCompile(`\bcount\s*[:\-]\s*(\d+)`),
}

// Edges returns the text of the first and last page of each document.
func Edges(docs []models.Document) string {
	var sb strings.Builder
	for _, d := range docs {
		if len(d.Pages) == 0 {
			continue
		}
		idx := []int{0}
		if last := len(d.Pages) - 1; last > 0 {
			idx = append(idx, last)
		}
		for _, i := range idx {
			sb.WriteString("\n[" + d.Name + " - pág. " + strconv.Itoa(d.Pages[i].Number) + "]\n")
			sb.WriteString(d.Pages[i].Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FooterTotal finds a declared record count in text. When several
// candidates are found the most frequent wins, ties going to the smallest.
func FooterTotal(text string) (int, bool) {
	lower := strings.ToLower(text)
	counts := make(map[int]int)
	for _, re := range totalPatterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			v, err := strconv.Atoi(m[1])
			if err == nil && v > 1 && v < 100000 {
				counts[v]++
			}
		}
	}
	if len(counts) == 0 {
		return 0, false
	}
	vals := make([]int, 0, len(counts))
	for v := range counts {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(a, b int) bool {
		if counts[vals[a]] != counts[vals[b]] {
			return counts[vals[a]] > counts[vals[b]]
		}
		return vals[a] < vals[b]
	})
	return vals[0], true
}

// Checker finds expected totals and missing records.
type Checker struct {
	Generator oracle.Generator // optional fallback for the expected total
	Logger    *slog.Logger
}

// ExpectedTotal reads the declared record count from the edge pages of the
// documents, asking the oracle when no footer pattern matches.
func (c *Checker) ExpectedTotal(ctx context.Context, docs []models.Document) (int, Source) {
	edges := Edges(docs)
	if n, ok := FooterTotal(edges); ok {
		return n, SourceFooter
	}
	if c.Generator == nil {
		return 0, SourceNone
	}
	reply, err := c.Generator.Generate(ctx, oracle.TotalPrompt+"\n\nTEXTO:\n"+edges)
	if err != nil {
		c.logger().WarnContext(ctx, "verify.total.oracle_failed", slog.String("error", err.Error()))
		return 0, SourceNone
	}
	if n, ok := oracle.ParseCount(reply); ok {
		return n, SourceOracle
	}
	return 0, SourceNone
}

func (c *Checker) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Compare classifies an extracted count against the expected one.
// An expected value of zero means unknown.
func Compare(extracted, expected int) Status {
	switch {
	case expected <= 0:
		return StatusUnknown
	case extracted == expected:
		return StatusMatch
	case extracted > expected:
		return StatusSurplus
	default:
		return StatusDeficit
	}
}

// FindMissing returns the records of universe whose process id does not
// appear among accepted, in universe order, one per process id.
func FindMissing(accepted, universe []models.Record) []models.Record {
	have := make(map[string]bool, len(accepted))
	for _, r := range accepted {
		have[parser.DigitsOnly(r.ProcessID)] = true
	}
	var missing []models.Record
	for _, r := range universe {
		id := parser.DigitsOnly(r.ProcessID)
		if id == "" || have[id] {
			continue
		}
		have[id] = true
		missing = append(missing, r)
	}
	return missing
}
