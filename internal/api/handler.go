package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insightdelivered/medical-billing-extractor/internal/extractor"
	"github.com/insightdelivered/medical-billing-extractor/internal/metrics"
	"github.com/insightdelivered/medical-billing-extractor/internal/models"
	"github.com/insightdelivered/medical-billing-extractor/internal/oracle"
	"github.com/insightdelivered/medical-billing-extractor/internal/parser"
	"github.com/insightdelivered/medical-billing-extractor/internal/pipeline"
	"github.com/insightdelivered/medical-billing-extractor/internal/writer"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// pageBreak separates pages in client-side extracted text.
const pageBreak = "\n---PAGE_BREAK---\n"

// ConvertResponse is the JSON response from the /api/convert endpoint.
type ConvertResponse struct {
	Success    bool               `json:"success"`
	Error      string             `json:"error,omitempty"`
	RunID      string             `json:"runId,omitempty"`
	Report     string             `json:"report,omitempty"`
	Records    []models.Record    `json:"records"`
	Count      int                `json:"count"`
	Duplicates int                `json:"duplicates"`
	Written    int                `json:"written"`
	FirstRow   int                `json:"firstRow,omitempty"`
	Stats      models.Stats       `json:"stats"`
	CSV        string             `json:"csv,omitempty"`
	RawText    string             `json:"rawText,omitempty"`
	Version    string             `json:"version,omitempty"`
	DebugLines []models.DebugLine `json:"debugLines,omitempty"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Service   *pipeline.Service
	Profiles  map[models.ReportType]models.Profile
	Generator oracle.Generator // nil disables the oracle engine
	Oracle    oracle.Options
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	StaticDir string
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/health", h.HandleHealth)
	app.Post("/api/convert", h.HandleConvert)
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{})))
	}
	if h.StaticDir != "" {
		app.Static("/", h.StaticDir)
	}
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": Version,
	})
}

// HandleConvert parses an uploaded PDF and, when append=true, writes the
// new rows to the workbook.
func (h *Handler) HandleConvert(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "No file uploaded. Use form field 'file'.")
	}
	if !strings.HasSuffix(strings.ToLower(file.Filename), ".pdf") {
		return writeError(c, fiber.StatusBadRequest, "Only PDF files are supported.")
	}

	// Pre-extracted text (from client-side pdf.js) skips server-side extraction
	doc := models.Document{Name: file.Filename}
	if extracted := c.FormValue("extractedText"); extracted != "" {
		for _, page := range strings.Split(extracted, pageBreak) {
			if page = strings.TrimSpace(page); page != "" {
				doc.Pages = append(doc.Pages, models.Page{Number: len(doc.Pages) + 1, Text: page})
			}
		}
	}

	if len(doc.Pages) == 0 {
		tmpDir, err := os.MkdirTemp("", "billing-upload-*")
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "Failed to create temp file.")
		}
		defer os.RemoveAll(tmpDir)

		tmpPath := filepath.Join(tmpDir, "upload.pdf")
		if err := c.SaveFile(file, tmpPath); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "Failed to save uploaded file.")
		}
		extractedDoc, err := extractor.ExtractDocument(tmpPath)
		if err != nil {
			return writeError(c, fiber.StatusUnprocessableEntity, fmt.Sprintf("PDF extraction failed: %v", err))
		}
		doc.Pages = extractedDoc.Pages
	}

	report, err := h.reportFor(c.FormValue("report"), doc)
	if err != nil {
		return writeError(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	opts := parser.Options{
		Profile: h.Profiles[report],
		Engine:  models.Engine(strings.ToLower(c.FormValue("engine"))),
		Logger:  h.Logger,
	}
	if h.Generator != nil {
		opts.Extractor = oracle.ForReport(h.Generator, report, h.Oracle)
	}
	p, err := parser.New(report, opts)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}
	if _, ok := p.(*parser.LayoutParser); ok && !doc.HasWords() {
		return writeError(c, fiber.StatusUnprocessableEntity,
			"The layout engine needs word positions; upload the PDF without extractedText or choose engine=oracle.")
	}

	var svc pipeline.Service
	if h.Service != nil {
		svc = *h.Service
	}
	if c.FormValue("append") != "true" {
		svc.Store = nil
	}

	res, procErr := svc.Process(c.UserContext(), p, []models.Document{doc})
	resp := ConvertResponse{
		Success:    procErr == nil,
		RunID:      res.RunID,
		Report:     string(report),
		Records:    res.Accepted,
		Count:      len(res.Accepted),
		Duplicates: res.Duplicates,
		Written:    res.Written,
		FirstRow:   res.FirstRow,
		Stats:      res.Stats,
		RawText:    strings.Join(doc.Texts(), "\n--- PAGE BREAK ---\n"),
		Version:    Version,
	}
	if resp.Records == nil {
		resp.Records = []models.Record{}
	}
	for _, ext := range res.Extractions {
		resp.DebugLines = append(resp.DebugLines, ext.DebugLines...)
	}

	var csvBuf bytes.Buffer
	csvWriter := &writer.CSVWriter{IncludeHeader: c.FormValue("header") != "false"}
	if err := csvWriter.Write(&csvBuf, &models.Extraction{Report: report, Source: doc.Name, Records: res.Accepted}); err == nil {
		resp.CSV = csvBuf.String()
	}

	if procErr != nil {
		resp.Error = procErr.Error()
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	}
	return c.JSON(resp)
}

func (h *Handler) reportFor(param string, doc models.Document) (models.ReportType, error) {
	if param != "" {
		report, err := parser.ParseReportType(param)
		if errors.Is(err, parser.ErrUnknownReport) {
			return "", fmt.Errorf("Unknown report: %q. Use fees, anesthesia, consultations or special-exams.", param)
		}
		return report, err
	}
	return parser.AutoDetect(doc.Texts())
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ConvertResponse{
		Success: false,
		Error:   msg,
		Records: []models.Record{},
	})
}
