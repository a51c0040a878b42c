package parser

import (
	"context"
	"log/slog"
	"strings"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
	"github.com/insightdelivered/medical-billing-extractor/internal/oracle"
)

// OracleParser reads pages through an oracle.Extractor and maps its replies
// onto the same Record shape as the line grammars.
type OracleParser struct {
	report    models.ReportType
	profile   models.Profile
	extractor oracle.Extractor
	noise     *noiseMatcher
	chunkSize int
	logger    *slog.Logger
}

// Report returns the report type handled by the parser.
func (p *OracleParser) Report() models.ReportType {
	return p.report
}

// Chunked returns a copy of the parser that sends the whole document in
// bounded windows instead of page by page, deduplicating by process id.
func (p *OracleParser) Chunked(size int) *OracleParser {
	cp := *p
	if size <= 0 {
		size = oracle.DefaultChunkSize
	}
	cp.chunkSize = size
	return &cp
}

// Parse queries the oracle page by page. A page whose query fails yields no
// records; the document carries on.
func (p *OracleParser) Parse(ctx context.Context, doc models.Document) (*models.Extraction, error) {
	ext := &models.Extraction{Report: p.report, Source: doc.Name}
	if p.chunkSize > 0 {
		return p.parseChunked(ctx, doc, ext)
	}

	skip := make(map[int]bool, len(p.profile.SkipPages))
	for _, n := range p.profile.SkipPages {
		skip[n] = true
	}

	var st State
	for _, page := range doc.Pages {
		if skip[page.Number] || strings.TrimSpace(page.Text) == "" {
			continue
		}
		raws, err := p.extractor.Extract(ctx, page.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ext, ctxErr
			}
			p.logger.WarnContext(ctx, "parser.oracle.page_failed",
				slog.String("source", doc.Name),
				slog.Int("page", page.Number),
				slog.String("error", err.Error()),
			)
			continue
		}
		var res PageResult
		res, st = p.ToRecords(page.Number, raws, st)
		ext.Records = append(ext.Records, res.Records...)
		ext.Stats.Add(res.Stats)
	}
	stampSource(ext.Records, doc.Name)
	return ext, nil
}

func (p *OracleParser) parseChunked(ctx context.Context, doc models.Document, ext *models.Extraction) (*models.Extraction, error) {
	raws, err := oracle.ExtractChunked(ctx, p.extractor, strings.Join(doc.Texts(), "\n"), p.chunkSize, p.logger)
	if err != nil {
		return ext, err
	}
	res, _ := p.ToRecords(0, raws, State{})
	ext.Records = res.Records
	ext.Stats = res.Stats
	stampSource(ext.Records, doc.Name)
	return ext, nil
}

// ToRecords validates raw oracle objects in reply order. Objects without a
// usable date inherit the last one seen, as continuation lines do.
func (p *OracleParser) ToRecords(page int, raws []oracle.RawRecord, st State) (PageResult, State) {
	var res PageResult
	for i, raw := range raws {
		res.Stats.Lines++

		if date, ok := NormalizeDate(string(raw.Date)); ok {
			st.LastDate = date
		} else if !st.HasDate() {
			res.Stats.Orphaned++
			continue
		}

		rec := models.Record{
			Date:      st.LastDate,
			ProcessID: processID(raw.Identifier(), p.profile.KeepPrefix),
			Name:      CleanName(string(raw.Name), p.profile.JunkFragments),
			Procedure: firstClause(string(raw.Procedure)),
			Entity:    strings.TrimSpace(string(raw.Entity)),
			Group:     st.LastGroup,
			Page:      page,
			Line:      i + 1,
			Method:    "oracle",
		}
		if s := strings.TrimSpace(string(raw.Amount)); s != "" {
			if v, err := NormalizeAmount(s); err == nil {
				rec.Amount = &v
			}
		}

		if !valid(rec) || p.noise.isNoise(rec.Name) {
			res.Stats.Invalid++
			continue
		}
		res.Stats.Parsed++
		res.Records = append(res.Records, rec)
	}
	return res, st
}

// firstClause keeps the first line of a procedure up to the first comma.
func firstClause(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	return CleanProcedure(s)
}
