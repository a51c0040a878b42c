// Package sheet maps records onto spreadsheet rows and appends them to a
// workbook without touching the formula columns left of the write offset.
package sheet

import (
	"errors"
	"fmt"
	"time"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
	"github.com/insightdelivered/medical-billing-extractor/internal/parser"
)

// ErrInvalidLayout is returned for a layout without sheet or offset column.
var ErrInvalidLayout = errors.New("invalid sheet layout")

// WrittenAtLayout is the format of the "written at" column.
const WrittenAtLayout = "02-01-2006 15:04"

// Layout describes where and how one report type is stored.
type Layout struct {
	Sheet      string
	Offset     string // first column written, e.g. "C"
	Header     []string
	KeyColumns []int // row indices forming the dedup key
	fields     func(models.Record) []string
}

// Validate checks the layout can be written.
func (l Layout) Validate() error {
	if l.Sheet == "" || l.Offset == "" || len(l.Header) == 0 {
		return fmt.Errorf("%w: sheet %q offset %q", ErrInvalidLayout, l.Sheet, l.Offset)
	}
	return nil
}

// Row renders a record as [date, process, name, ...fields, writtenAt, source].
func (l Layout) Row(rec models.Record, writtenAt time.Time) []string {
	row := []string{rec.Date, rec.ProcessID, rec.Name}
	if l.fields != nil {
		row = append(row, l.fields(rec)...)
	}
	return append(row, writtenAt.Format(WrittenAtLayout), rec.SourceFile)
}

// LayoutFor returns the sheet layout of a report type.
func LayoutFor(report models.ReportType) (Layout, error) {
	switch report {
	case models.ReportFees:
		return Layout{
			Sheet:  "Honorários",
			Offset: "C",
			Header: []string{"Data", "Processo", "Nome", "Valor", "Procedimento", "Entidade", "Data Execução", "Ficheiro"},
			// reversal rows share date, process and procedure but not the amount sign;
			// the same act billed to two payers differs by entity
			KeyColumns: []int{0, 1, 4, 3, 5},
			fields: func(r models.Record) []string {
				amount := ""
				if r.Amount != nil {
					amount = parser.FormatAmount(*r.Amount)
				}
				return []string{amount, r.Procedure, r.Entity}
			},
		}, nil
	case models.ReportAnesthesia:
		return Layout{
			Sheet:      "Anestesiados",
			Offset:     "C",
			Header:     []string{"Data", "Processo", "Nome Completo", "Procedimento", "Data Execução", "Ficheiro"},
			KeyColumns: []int{0, 1, 2},
			fields: func(r models.Record) []string {
				return []string{r.Procedure}
			},
		}, nil
	case models.ReportConsultations:
		return Layout{
			Sheet:      "Consulta",
			Offset:     "C",
			Header:     []string{"Data", "Nº Processo", "Nome", "Data Execução", "Origem PDF"},
			KeyColumns: []int{0, 1},
		}, nil
	case models.ReportSpecialExams:
		return Layout{
			Sheet:      "ExamesEsp",
			Offset:     "C",
			Header:     []string{"Data", "HCIS", "Nome", "Exame", "Data Execução", "Ficheiro"},
			KeyColumns: []int{0, 1, 2},
			fields: func(r models.Record) []string {
				return []string{r.Procedure}
			},
		}, nil
	}
	return Layout{}, fmt.Errorf("%w: no layout for report %q", ErrInvalidLayout, report)
}
