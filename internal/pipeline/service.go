// Package pipeline runs documents through a parser, drops rows that are
// already stored and appends the rest to the workbook.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/insightdelivered/medical-billing-extractor/internal/dedup"
	"github.com/insightdelivered/medical-billing-extractor/internal/metrics"
	"github.com/insightdelivered/medical-billing-extractor/internal/models"
	"github.com/insightdelivered/medical-billing-extractor/internal/parser"
	"github.com/insightdelivered/medical-billing-extractor/internal/sheet"
	"github.com/insightdelivered/medical-billing-extractor/internal/verify"
)

// Service wires parsing, deduplication and persistence.
type Service struct {
	Store   sheet.Store // nil runs without persistence
	Batch   sheet.BatchOptions
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Result summarises one run.
type Result struct {
	RunID       string
	Report      models.ReportType
	Extractions []*models.Extraction
	Accepted    []models.Record
	Rows        [][]string
	Duplicates  int
	Written     int
	FirstRow    int
	Stats       models.Stats
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Process parses every document in order, keeps the records whose key is
// new and appends their rows. Parsing problems never fail the run; a
// persistence failure is returned together with the accepted records.
func (s *Service) Process(ctx context.Context, p parser.Parser, docs []models.Document) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Report: p.Report()}
	log := s.logger().With(slog.String("run_id", res.RunID), slog.String("report", string(res.Report)))

	layout, err := sheet.LayoutFor(p.Report())
	if err != nil {
		return res, err
	}

	var existing [][]string
	if s.Store != nil {
		existing, err = s.Store.Rows(ctx, layout)
		if err != nil {
			return res, fmt.Errorf("load existing rows: %w", err)
		}
	}
	seen := dedup.Load(existing, layout.KeyColumns)
	log.InfoContext(ctx, "pipeline.run.start",
		slog.Int("documents", len(docs)),
		slog.Int("existing_keys", seen.Len()),
	)

	writtenAt := s.now()
	for _, doc := range docs {
		ext, err := p.Parse(ctx, doc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			log.WarnContext(ctx, "pipeline.document.failed",
				slog.String("source", doc.Name),
				slog.String("error", err.Error()),
			)
			s.countDocument(res.Report, "failed")
			continue
		}
		res.Extractions = append(res.Extractions, ext)
		res.Stats.Add(ext.Stats)
		s.countDocument(res.Report, "parsed")
		if s.Metrics != nil {
			s.Metrics.ObserveExtraction(ext)
		}

		dups := 0
		for _, rec := range ext.Records {
			rec.ExtractedAt = writtenAt
			row := layout.Row(rec, writtenAt)
			if !seen.Add(row) {
				dups++
				continue
			}
			res.Accepted = append(res.Accepted, rec)
			res.Rows = append(res.Rows, row)
		}
		res.Duplicates += dups

		log.InfoContext(ctx, "pipeline.document.parsed",
			slog.String("source", doc.Name),
			slog.Int("pages", len(doc.Pages)),
			slog.Int("records", len(ext.Records)),
			slog.Int("duplicates", dups),
		)
	}
	if s.Metrics != nil {
		s.Metrics.Duplicates.WithLabelValues(string(res.Report)).Add(float64(res.Duplicates))
	}

	if s.Store == nil || len(res.Rows) == 0 {
		return res, nil
	}

	res.Written, res.FirstRow, err = sheet.AppendBatched(ctx, s.Store, layout, res.Rows, s.Batch)
	if s.Metrics != nil {
		s.Metrics.RowsWritten.WithLabelValues(string(res.Report)).Add(float64(res.Written))
	}
	if err != nil {
		log.ErrorContext(ctx, "pipeline.append.failed",
			slog.Int("written", res.Written),
			slog.Int("pending", len(res.Rows)-res.Written),
			slog.String("error", err.Error()),
		)
		return res, fmt.Errorf("persist rows: %w", err)
	}

	log.InfoContext(ctx, "pipeline.run.done",
		slog.Int("accepted", len(res.Accepted)),
		slog.Int("written", res.Written),
		slog.Int("first_row", res.FirstRow),
	)
	return res, nil
}

func (s *Service) countDocument(report models.ReportType, outcome string) {
	if s.Metrics != nil {
		s.Metrics.Documents.WithLabelValues(string(report), outcome).Inc()
	}
}

// Verification is the outcome of the expected-total cross-check.
type Verification struct {
	Expected int
	Source   verify.Source
	Status   verify.Status
	Missing  []models.Record
}

// Verify compares the accepted count with the total the documents declare.
// When the counts disagree and a hunter is given, the documents are re-read
// by it and the records absent from the accepted set are reported.
func (s *Service) Verify(ctx context.Context, checker *verify.Checker, hunter parser.Parser, docs []models.Document, accepted []models.Record) (*Verification, error) {
	v := &Verification{}
	v.Expected, v.Source = checker.ExpectedTotal(ctx, docs)
	v.Status = verify.Compare(len(accepted), v.Expected)

	if hunter == nil || v.Status == verify.StatusMatch {
		return v, nil
	}

	var universe []models.Record
	for _, doc := range docs {
		ext, err := hunter.Parse(ctx, doc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return v, ctxErr
			}
			continue
		}
		universe = append(universe, ext.Records...)
	}
	v.Missing = verify.FindMissing(accepted, universe)

	s.logger().InfoContext(ctx, "pipeline.verify.done",
		slog.Int("expected", v.Expected),
		slog.String("source", string(v.Source)),
		slog.String("status", string(v.Status)),
		slog.Int("missing", len(v.Missing)),
	)
	return v, nil
}
