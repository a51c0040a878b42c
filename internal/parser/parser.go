package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
	"github.com/insightdelivered/medical-billing-extractor/internal/oracle"
)

var (
	// ErrUnknownReport is returned when a report type is not supported.
	ErrUnknownReport = errors.New("unknown report type")
	// ErrNoOracle is returned when the oracle engine is chosen without an extractor.
	ErrNoOracle = errors.New("oracle engine requires an extractor")
	// ErrNoWords is returned by the layout engine for text-only documents.
	ErrNoWords = errors.New("layout engine requires positioned words")
)

// Parser defines the interface for billing report parsers.
type Parser interface {
	// Parse turns one extracted document into records, in page then line order.
	Parse(ctx context.Context, doc models.Document) (*models.Extraction, error)
	// Report returns the report type the parser handles.
	Report() models.ReportType
}

// Options configures New.
type Options struct {
	Profile   models.Profile // merged over DefaultProfile
	Engine    models.Engine  // overrides the profile engine when set
	Extractor oracle.Extractor
	Logger    *slog.Logger
}

// New returns the appropriate parser for the given report type.
func New(report models.ReportType, opts Options) (Parser, error) {
	if !IsKnown(report) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, report)
	}
	profile := opts.Profile.Merge(DefaultProfile(report))
	engine := opts.Engine
	if engine == models.EngineAuto {
		engine = profile.Engine
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	noise := newNoiseMatcher(nil, profile.NoiseTerms)
	header := newNoiseMatcher(nil, profile.HeaderTerms)

	switch engine {
	case models.EngineOracle:
		if opts.Extractor == nil {
			return nil, ErrNoOracle
		}
		return &OracleParser{report: report, profile: profile, extractor: opts.Extractor, noise: noise, logger: logger}, nil

	case models.EngineLayout:
		if report != models.ReportConsultations {
			return nil, fmt.Errorf("report %q has no layout grammar", report)
		}
		return &LayoutParser{report: report, profile: profile, noise: noise, header: header, logger: logger}, nil

	case models.EngineRegex:
		var g *Grammar
		switch report {
		case models.ReportFees:
			g = newFeesGrammar(profile)
		case models.ReportAnesthesia:
			g = newAnesthesiaGrammar(profile)
		default:
			return nil, fmt.Errorf("report %q has no line grammar", report)
		}
		return &LineParser{report: report, grammar: g, noise: noise, markers: profile.InversionMarkers, logger: logger}, nil
	}
	return nil, fmt.Errorf("unsupported engine %q", engine)
}

// IsKnown reports whether report is a supported report type.
func IsKnown(report models.ReportType) bool {
	for _, r := range models.ReportTypes {
		if r == report {
			return true
		}
	}
	return false
}

// ParseReportType maps user input ("honorarios", "fees", ...) to a report type.
func ParseReportType(s string) (models.ReportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fees", "honorarios", "honorários":
		return models.ReportFees, nil
	case "anesthesia", "anestesia", "anestesiados":
		return models.ReportAnesthesia, nil
	case "consultations", "consultas", "consulta":
		return models.ReportConsultations, nil
	case "special-exams", "exames", "exames-especiais":
		return models.ReportSpecialExams, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReport, s)
}

// AutoDetect tries to identify the report from the PDF text content.
func AutoDetect(pages []string) (models.ReportType, error) {
	combined := strings.Join(pages, "\n")

	// Check for report-specific identifiers
	if containsAny(combined, []string{"Mapa de Honor", "PS_PA_009"}) {
		return models.ReportFees, nil
	}
	if containsAny(combined, []string{"GHCE4025R", "Actos Médicos"}) {
		return models.ReportConsultations, nil
	}
	if containsAny(combined, []string{"GHCE9050", "Exames Especiais"}) {
		return models.ReportSpecialExams, nil
	}
	if containsAny(combined, []string{"Anestesiados", "Doentes Anestesiados"}) {
		return models.ReportAnesthesia, nil
	}

	return "", fmt.Errorf("could not auto-detect report type from content; please specify --report flag")
}

func containsAny(text string, needles []string) bool {
	upper := strings.ToUpper(text)
	for _, needle := range needles {
		if needle != "" && strings.Contains(upper, strings.ToUpper(needle)) {
			return true
		}
	}
	return false
}
