package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"

	"github.com/insightdelivered/medical-billing-extractor/internal/api"
	"github.com/insightdelivered/medical-billing-extractor/internal/config"
	"github.com/insightdelivered/medical-billing-extractor/internal/extractor"
	"github.com/insightdelivered/medical-billing-extractor/internal/metrics"
	"github.com/insightdelivered/medical-billing-extractor/internal/models"
	"github.com/insightdelivered/medical-billing-extractor/internal/oracle"
	"github.com/insightdelivered/medical-billing-extractor/internal/parser"
	"github.com/insightdelivered/medical-billing-extractor/internal/pipeline"
	"github.com/insightdelivered/medical-billing-extractor/internal/sheet"
	"github.com/insightdelivered/medical-billing-extractor/internal/verify"
	"github.com/insightdelivered/medical-billing-extractor/internal/writer"
)

func main() {
	// CLI flags
	reportFlag := flag.String("report", "", "Report type: fees, anesthesia, consultations, special-exams (auto-detected if omitted)")
	engineFlag := flag.String("engine", "", "Extraction engine: regex, layout, oracle (report default if omitted)")
	workbookFlag := flag.String("workbook", "", "Append new rows to this .xlsx workbook (overrides WORKBOOK_PATH)")
	outputFlag := flag.String("output", "", "Output CSV file path (defaults to input filename with .csv extension)")
	headerFlag := flag.Bool("header", true, "Include report metadata header rows in CSV")
	verifyFlag := flag.Bool("verify", false, "Cross-check the record count against the report's declared total")
	serveFlag := flag.Bool("serve", false, "Run the HTTP API instead of converting files")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Medical Billing Report Extractor
by Insight Delivered (QEA AutoLens)

Extracts patient records from hospital billing listings (fees,
anesthesia, consultations and special exams) into CSV files and
an Excel workbook, skipping rows that are already stored.

Usage:
  billing-extractor [flags] <input.pdf> [input2.pdf ...]
  billing-extractor --serve

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Auto-detect report and convert
  billing-extractor listagem.pdf

  # Append fees to the billing workbook
  billing-extractor --report=fees --workbook=faturacao.xlsx jan.pdf feb.pdf

  # Read special exams through the oracle and verify the total
  billing-extractor --report=special-exams --verify exames.pdf

Supported Reports:
  fees           - Mapa de Honorários (line grammar)
  anesthesia     - Doentes Anestesiados (line grammar)
  consultations  - Actos Médicos / Consultas (word layout)
  special-exams  - Exames Especiais (oracle)
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("billing-extractor v%s\n", api.Version)
		os.Exit(0)
	}

	if *helpFlag || (flag.NArg() == 0 && !*serveFlag) {
		flag.Usage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("Configuration error: %v\n", err)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	profiles, err := config.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		fatalf("Profile error: %v\n", err)
	}

	m := metrics.New()
	var gen oracle.Generator
	if cfg.Gemini.APIKey != "" {
		gemini, err := oracle.NewGemini(oracle.GeminiOptions{
			BaseURL: cfg.Gemini.BaseURL,
			Model:   cfg.Gemini.Model,
			APIKey:  cfg.Gemini.APIKey,
			Timeout: cfg.Gemini.Timeout,
		})
		if err != nil {
			fatalf("Oracle error: %v\n", err)
		}
		gen = m.Generator(gemini)
	}
	oracleOpts := oracle.Options{
		MaxRetries:   uint64(cfg.Oracle.MaxRetries),
		DisableRetry: cfg.Oracle.MaxRetries == 0,
		Backoff:      cfg.Oracle.Backoff,
		Logger:       logger,
	}

	if *workbookFlag != "" {
		cfg.Sheet.Workbook = *workbookFlag
	}
	svc := &pipeline.Service{
		Batch:   sheet.BatchOptions{Size: cfg.Sheet.BatchSize, Pause: cfg.Sheet.BatchPause},
		Metrics: m,
		Logger:  logger,
	}
	if cfg.Sheet.Workbook != "" {
		svc.Store = sheet.NewWorkbook(cfg.Sheet.Workbook)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveFlag {
		if err := serve(ctx, cfg, &api.Handler{
			Service:   svc,
			Profiles:  profiles,
			Generator: gen,
			Oracle:    oracleOpts,
			Metrics:   m,
			Logger:    logger,
			StaticDir: cfg.Server.StaticDir,
		}); err != nil {
			fatalf("Server error: %v\n", err)
		}
		return
	}

	// Validate report flag if provided
	var report models.ReportType
	if *reportFlag != "" {
		report, err = parser.ParseReportType(*reportFlag)
		if err != nil {
			fatalf("Unknown report type %q. Supported: fees, anesthesia, consultations, special-exams\n", *reportFlag)
		}
	}

	run := runner{
		svc:        svc,
		profiles:   profiles,
		gen:        gen,
		oracleOpts: oracleOpts,
		chunkSize:  cfg.Oracle.ChunkSize,
		engine:     models.Engine(strings.ToLower(*engineFlag)),
		output:     *outputFlag,
		header:     *headerFlag,
		verify:     *verifyFlag,
		logger:     logger,
	}
	if err := run.files(ctx, report, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runner struct {
	svc        *pipeline.Service
	profiles   map[models.ReportType]models.Profile
	gen        oracle.Generator
	oracleOpts oracle.Options
	chunkSize  int
	engine     models.Engine
	output     string
	header     bool
	verify     bool
	logger     *slog.Logger
}

// files extracts every input, then runs them through one pipeline pass so
// that duplicates across files are dropped as well.
func (r *runner) files(ctx context.Context, report models.ReportType, inputPaths []string) error {
	var docs []models.Document
	paths := make(map[string]string)
	for _, inputPath := range inputPaths {
		if _, err := os.Stat(inputPath); os.IsNotExist(err) {
			return fmt.Errorf("input file not found: %s", inputPath)
		}
		if ext := strings.ToLower(filepath.Ext(inputPath)); ext != ".pdf" {
			return fmt.Errorf("expected .pdf file, got %q", ext)
		}

		fmt.Printf("Processing: %s\n", inputPath)
		doc, err := extractor.ExtractDocument(inputPath)
		if err != nil {
			return fmt.Errorf("PDF extraction failed for %s: %w", inputPath, err)
		}
		fmt.Printf("  Extracted text from %d page(s)\n", len(doc.Pages))

		// Auto-detect report from the first file if not specified
		if report == "" {
			detected, err := parser.AutoDetect(doc.Texts())
			if err != nil {
				return err
			}
			report = detected
			fmt.Printf("  Auto-detected report: %s\n", report)
		}
		paths[doc.Name] = inputPath
		docs = append(docs, doc)
	}

	p, err := parser.New(report, r.parserOptions(report, r.engine))
	if err != nil {
		return err
	}

	res, procErr := r.svc.Process(ctx, p, docs)
	if res != nil {
		if err := r.writeCSVs(res, paths); err != nil {
			return err
		}
		fmt.Printf("Records: %d new, %d duplicate\n", len(res.Accepted), res.Duplicates)
		fmt.Printf("Lines: %d parsed, %d ignored, %d orphaned, %d invalid, %d unmatched\n",
			res.Stats.Parsed, res.Stats.Ignored, res.Stats.Orphaned, res.Stats.Invalid, res.Stats.Unparsed)
		if res.Written > 0 {
			fmt.Printf("Workbook: %d row(s) written from row %d\n", res.Written, res.FirstRow)
		}
	}
	if procErr != nil {
		return procErr
	}

	if len(res.Accepted) == 0 {
		fmt.Println("  Warning: No new records found. The PDF format may not match expected patterns.")
		fmt.Println("  Try specifying the report explicitly with --report flag if auto-detection was used.")
	}

	if r.verify {
		return r.verifyTotals(ctx, report, docs, res)
	}
	return nil
}

func (r *runner) parserOptions(report models.ReportType, engine models.Engine) parser.Options {
	opts := parser.Options{
		Profile: r.profiles[report],
		Engine:  engine,
		Logger:  r.logger,
	}
	if r.gen != nil {
		opts.Extractor = oracle.ForReport(r.gen, report, r.oracleOpts)
	}
	return opts
}

// writeCSVs writes one CSV per extracted document with its accepted records.
func (r *runner) writeCSVs(res *pipeline.Result, paths map[string]string) error {
	accepted := make(map[string][]models.Record)
	for _, rec := range res.Accepted {
		accepted[rec.SourceFile] = append(accepted[rec.SourceFile], rec)
	}

	w := &writer.CSVWriter{IncludeHeader: r.header}
	for i, ext := range res.Extractions {
		outPath := r.output
		if outPath == "" || len(res.Extractions) > 1 {
			base := strings.TrimSuffix(paths[ext.Source], filepath.Ext(ext.Source))
			if r.output != "" {
				base = fmt.Sprintf("%s_%d", strings.TrimSuffix(r.output, filepath.Ext(r.output)), i+1)
			}
			outPath = base + ".csv"
		}
		out := *ext
		out.Records = accepted[ext.Source]
		if err := w.WriteToFile(outPath, &out); err != nil {
			return fmt.Errorf("CSV write failed: %w", err)
		}
		fmt.Printf("  Output: %s (%d record(s))\n", outPath, len(out.Records))
	}
	return nil
}

func (r *runner) verifyTotals(ctx context.Context, report models.ReportType, docs []models.Document, res *pipeline.Result) error {
	checker := &verify.Checker{Generator: r.gen, Logger: r.logger}

	var hunter parser.Parser
	if r.gen != nil {
		p, err := parser.New(report, r.parserOptions(report, models.EngineOracle))
		if err != nil {
			return err
		}
		if op, ok := p.(*parser.OracleParser); ok {
			hunter = op.Chunked(r.chunkSize)
		}
	}

	var all []models.Record
	for _, ext := range res.Extractions {
		all = append(all, ext.Records...)
	}
	v, err := r.svc.Verify(ctx, checker, hunter, docs, all)
	if err != nil {
		return err
	}

	switch v.Status {
	case verify.StatusUnknown:
		fmt.Println("Verify: no declared total found")
	case verify.StatusMatch:
		fmt.Printf("Verify: %d of %d records (%s)\n", len(all), v.Expected, v.Source)
	default:
		fmt.Printf("Verify: %s, extracted %d, declared %d (%s)\n", v.Status, len(all), v.Expected, v.Source)
	}
	for _, rec := range v.Missing {
		fmt.Printf("  Missing: %s %s %s\n", rec.Date, rec.ProcessID, rec.Name)
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, h *api.Handler) error {
	app := fiber.New(fiber.Config{
		AppName:   "billing-extractor",
		BodyLimit: cfg.Server.MaxUpload * 1024 * 1024,
	})
	h.RegisterRoutes(app)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	h.Logger.Info("server.start", slog.String("addr", cfg.Server.Addr()))
	return app.Listen(cfg.Server.Addr())
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
