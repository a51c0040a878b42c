package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record represents a single billing line item extracted from a report.
type Record struct {
	Date          string           `json:"date"` // DD-MM-YYYY
	ProcessID     string           `json:"processId"`
	Name          string           `json:"name"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Procedure     string           `json:"procedure,omitempty"`
	ProcedureCode string           `json:"procedureCode,omitempty"`
	Group         string           `json:"group,omitempty"`
	Specialty     string           `json:"specialty,omitempty"`
	Entity        string           `json:"entity,omitempty"`
	Page          int              `json:"page"`
	Line          int              `json:"line"`
	Method        string           `json:"method,omitempty"` // debug: which matcher produced it
	SourceFile    string           `json:"sourceFile,omitempty"`
	ExtractedAt   time.Time        `json:"extractedAt"`
}

// ReportType represents supported billing report formats.
type ReportType string

const (
	ReportFees          ReportType = "fees"
	ReportAnesthesia    ReportType = "anesthesia"
	ReportConsultations ReportType = "consultations"
	ReportSpecialExams  ReportType = "special-exams"
)

// ReportTypes lists every supported report in display order.
var ReportTypes = []ReportType{ReportFees, ReportAnesthesia, ReportConsultations, ReportSpecialExams}

// Engine selects how a report is parsed.
type Engine string

const (
	EngineAuto   Engine = ""
	EngineRegex  Engine = "regex"
	EngineLayout Engine = "layout"
	EngineOracle Engine = "oracle"
)

// Word is a positioned piece of text on a page. Top grows downwards.
type Word struct {
	Text string  `json:"text"`
	X0   float64 `json:"x0"`
	Top  float64 `json:"top"`
}

// Page holds the extracted content of one PDF page.
type Page struct {
	Number int
	Text   string
	Words  []Word
}

// Document is one uploaded PDF, already run through text extraction.
type Document struct {
	Name  string
	Pages []Page
}

// Texts returns the plain text of each page in order.
func (d Document) Texts() []string {
	out := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		out[i] = p.Text
	}
	return out
}

// HasWords reports whether any page carries positioned words.
func (d Document) HasWords() bool {
	for _, p := range d.Pages {
		if len(p.Words) > 0 {
			return true
		}
	}
	return false
}

// DebugLine captures what the parser did with each input line.
type DebugLine struct {
	Page    int    `json:"page"`
	LineNum int    `json:"lineNum"`
	Text    string `json:"text"`
	Result  string `json:"result"` // "parsed", "ignored", "group", "orphan", "invalid", "unmatched"
	Method  string `json:"method,omitempty"`
}

// Stats counts line outcomes for one document.
type Stats struct {
	Lines    int `json:"lines"`
	Parsed   int `json:"parsed"`
	Ignored  int `json:"ignored"`
	Groups   int `json:"groups"`
	Orphaned int `json:"orphaned"`
	Invalid  int `json:"invalid"`
	Unparsed int `json:"unparsed"`
}

// Add accumulates counters from another document.
func (s *Stats) Add(o Stats) {
	s.Lines += o.Lines
	s.Parsed += o.Parsed
	s.Ignored += o.Ignored
	s.Groups += o.Groups
	s.Orphaned += o.Orphaned
	s.Invalid += o.Invalid
	s.Unparsed += o.Unparsed
}

// Extraction holds the records parsed from one document.
type Extraction struct {
	Report     ReportType
	Source     string
	Records    []Record
	Stats      Stats
	DebugLines []DebugLine
}
