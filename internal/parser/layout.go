package parser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

// Consultation listings (GHCE4025R) are parsed from positioned words rather
// than text lines: the name column wraps onto following rows, so plain text
// mixes it with neighbouring columns.
var (
	layoutDatePattern    = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}|\d{2}[-/.]\d{2}[-/.]\d{4})\s*(\d{2}:\d{2})?`)
	layoutProcessPattern = regexp.MustCompile(`(CCC|CCO|HCIS)/(\d+)`)
)

const stopMarker = "nascimento"

// LayoutParser handles word-positioned reports.
type LayoutParser struct {
	report  models.ReportType
	profile models.Profile
	noise   *noiseMatcher
	header  *noiseMatcher
	logger  *slog.Logger
}

// Report returns the report type handled by the parser.
func (p *LayoutParser) Report() models.ReportType {
	return p.report
}

// Parse walks the pages in order. State is reset for every document.
// A document with text but no positioned words fails with ErrNoWords.
func (p *LayoutParser) Parse(ctx context.Context, doc models.Document) (*models.Extraction, error) {
	ext := &models.Extraction{Report: p.report, Source: doc.Name}
	if !doc.HasWords() && strings.TrimSpace(strings.Join(doc.Texts(), "")) != "" {
		p.logger.WarnContext(ctx, "parser.layout.no_words",
			slog.String("source", doc.Name),
			slog.Int("pages", len(doc.Pages)),
		)
		return ext, fmt.Errorf("%s: %w", doc.Name, ErrNoWords)
	}
	var st State
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return ext, err
		}
		var res PageResult
		res, st = p.ParsePage(page, st)
		ext.Records = append(ext.Records, res.Records...)
		ext.DebugLines = append(ext.DebugLines, res.DebugLines...)
		ext.Stats.Add(res.Stats)
	}
	stampSource(ext.Records, doc.Name)
	p.logger.Debug("parser.layout.done",
		slog.String("source", doc.Name),
		slog.Int("records", len(ext.Records)),
	)
	return ext, nil
}

// ParsePage clusters the page's words into rows and builds one record per
// row that carries both a date and a process id.
func (p *LayoutParser) ParsePage(page models.Page, st State) (PageResult, State) {
	var res PageResult
	rows := clusterRows(page.Words, p.profile.RowGap)

	for i := 0; i < len(rows); {
		row := rows[i]
		text := rowText(row)
		res.Stats.Lines++
		debug := models.DebugLine{Page: page.Number, LineNum: i + 1, Text: text}

		if p.header != nil && p.header.isNoise(text) {
			res.Stats.Ignored++
			debug.Result = KindIgnore.String()
			res.DebugLines = append(res.DebugLines, debug)
			i++
			continue
		}

		dm := layoutDatePattern.FindStringSubmatch(text)
		pm := layoutProcessPattern.FindStringSubmatch(text)
		if dm == nil || pm == nil {
			res.Stats.Unparsed++
			debug.Result = KindUnmatched.String()
			res.DebugLines = append(res.DebugLines, debug)
			i++
			continue
		}

		names := p.nameWords(row)
		j := i + 1
		for ; j < len(rows); j++ {
			if p.stopsName(rows[j]) {
				break
			}
			names = append(names, p.nameWords(rows[j])...)
		}

		date, ok := NormalizeDate(dm[1])
		if !ok {
			res.Stats.Invalid++
			debug.Result = "invalid"
			res.DebugLines = append(res.DebugLines, debug)
			i = j
			continue
		}
		st.LastDate = date

		rec := models.Record{
			Date:      date,
			ProcessID: processID(pm[0], p.profile.KeepPrefix),
			Name:      CleanName(strings.Join(names, " "), p.profile.JunkFragments),
			Group:     st.LastGroup,
			Page:      page.Number,
			Line:      i + 1,
			Method:    "layout",
		}
		if !valid(rec) || p.noise.isNoise(rec.Name) {
			res.Stats.Invalid++
			debug.Result = "invalid"
		} else {
			res.Stats.Parsed++
			debug.Result = KindRecord.String()
			debug.Method = rec.Method
			res.Records = append(res.Records, rec)
		}
		res.DebugLines = append(res.DebugLines, debug)
		i = j
	}
	return res, st
}

// nameWords returns the words inside the name column that start with an
// uppercase letter.
func (p *LayoutParser) nameWords(row []models.Word) []string {
	var out []string
	for _, w := range row {
		if !p.profile.NameWindow.Contains(w.X0) {
			continue
		}
		if r := []rune(w.Text); len(r) > 0 && unicode.IsUpper(r[0]) {
			out = append(out, w.Text)
		}
	}
	return out
}

// stopsName reports whether a row ends the name continuation: the next dated
// row, the birth-date label, or a "Data" label in the leftmost column.
func (p *LayoutParser) stopsName(row []models.Word) bool {
	text := rowText(row)
	if layoutDatePattern.MatchString(text) {
		return true
	}
	if strings.Contains(strings.ToLower(text), stopMarker) {
		return true
	}
	for _, w := range row {
		if w.Text == "Data" && w.X0 < p.profile.StopLabelMaxX {
			return true
		}
	}
	return false
}

// clusterRows groups words whose vertical position is within gap of the
// previous word into the same row. Words in a row are ordered by X.
func clusterRows(words []models.Word, gap float64) [][]models.Word {
	if len(words) == 0 {
		return nil
	}
	sorted := append([]models.Word(nil), words...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Top < sorted[b].Top
	})

	rows := [][]models.Word{{sorted[0]}}
	for _, w := range sorted[1:] {
		last := rows[len(rows)-1]
		if w.Top-last[len(last)-1].Top <= gap {
			rows[len(rows)-1] = append(last, w)
		} else {
			rows = append(rows, []models.Word{w})
		}
	}
	for _, row := range rows {
		sort.SliceStable(row, func(a, b int) bool {
			return row[a].X0 < row[b].X0
		})
	}
	return rows
}

func rowText(row []models.Word) string {
	parts := make([]string, len(row))
	for i, w := range row {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}
