package parser

import (
	"context"
	"log/slog"
	"strings"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

// State is the field inheritance carried from one line to the next within a
// single document. The zero value is the "no date seen" state.
type State struct {
	LastDate  string
	LastGroup string
}

// HasDate reports whether a dated line has been seen in the document.
func (s State) HasDate() bool {
	return s.LastDate != ""
}

// PageResult is what parsing one page produced.
type PageResult struct {
	Records    []models.Record
	Stats      models.Stats
	DebugLines []models.DebugLine
}

// LineParser drives a Grammar over the text lines of a document.
type LineParser struct {
	report  models.ReportType
	grammar *Grammar
	noise   *noiseMatcher
	markers []string
	logger  *slog.Logger
}

// Report returns the report type handled by the parser.
func (p *LineParser) Report() models.ReportType {
	return p.report
}

// Parse runs every page of the document in order with a fresh State.
func (p *LineParser) Parse(ctx context.Context, doc models.Document) (*models.Extraction, error) {
	ext := &models.Extraction{Report: p.report, Source: doc.Name}
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

	p.logger.Debug("parser.document.done",
		slog.String("report", string(p.report)),
		slog.String("source", doc.Name),
		slog.Int("records", len(ext.Records)),
		slog.Int("orphaned", ext.Stats.Orphaned),
		slog.Int("unparsed", ext.Stats.Unparsed),
	)
	return ext, nil
}

// ParsePage classifies each line of the page top to bottom and returns the
// records found together with the state to hand to the next page.
func (p *LineParser) ParsePage(page models.Page, st State) (PageResult, State) {
	var res PageResult

	for i, raw := range strings.Split(page.Text, "\n") {
		line := strings.TrimSpace(RepairInversion(raw, p.markers))
		if line == "" {
			continue
		}
		res.Stats.Lines++
		debug := models.DebugLine{Page: page.Number, LineNum: i + 1, Text: line}

		m := p.grammar.Classify(line)
		debug.Method = m.Method
		debug.Result = m.Kind.String()

		switch m.Kind {
		case KindIgnore:
			res.Stats.Ignored++
			res.DebugLines = append(res.DebugLines, debug)
			continue

		case KindGroup:
			st.LastGroup = m.Group
			res.Stats.Groups++
			res.DebugLines = append(res.DebugLines, debug)
			continue

		case KindRecord:
			date, ok := NormalizeDate(m.Date)
			if !ok {
				res.Stats.Invalid++
				debug.Result = "invalid"
				res.DebugLines = append(res.DebugLines, debug)
				continue
			}
			st.LastDate = date
			if m.Group != "" {
				st.LastGroup = m.Group
			}
			m.Record.Date = date

		case KindContinuation:
			if !st.HasDate() {
				res.Stats.Orphaned++
				debug.Result = "orphan"
				res.DebugLines = append(res.DebugLines, debug)
				continue
			}
			m.Record.Date = st.LastDate

		default:
			res.Stats.Unparsed++
			res.DebugLines = append(res.DebugLines, debug)
			continue
		}

		rec := m.Record
		rec.Group = st.LastGroup
		rec.Page = page.Number
		rec.Line = i + 1
		rec.Method = m.Method

		if !valid(rec) || p.noise.isNoise(rec.Name) {
			res.Stats.Invalid++
			debug.Result = "invalid"
			res.DebugLines = append(res.DebugLines, debug)
			continue
		}
		res.Stats.Parsed++
		res.Records = append(res.Records, rec)
		res.DebugLines = append(res.DebugLines, debug)
	}
	return res, st
}

// valid enforces the record invariants shared by every report type.
func valid(rec models.Record) bool {
	if rec.Date == "" || DigitsOnly(rec.ProcessID) == "" {
		return false
	}
	return validName(rec.Name)
}

func stampSource(records []models.Record, source string) {
	for i := range records {
		records[i].SourceFile = source
	}
}
