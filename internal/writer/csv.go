package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
	"github.com/insightdelivered/medical-billing-extractor/internal/parser"
)

// CSVWriter writes extracted records to CSV format.
type CSVWriter struct {
	IncludeHeader bool
}

// csvRow is the column layout of the CSV export.
type csvRow struct {
	Date          string `csv:"Date"`
	ProcessID     string `csv:"Process"`
	Name          string `csv:"Name"`
	Amount        string `csv:"Amount"`
	Procedure     string `csv:"Procedure"`
	ProcedureCode string `csv:"ProcedureCode"`
	Group         string `csv:"Group"`
	Specialty     string `csv:"Specialty"`
	Entity        string `csv:"Entity"`
	Page          int    `csv:"Page"`
	Source        string `csv:"Source"`
}

// WriteToFile writes records to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, ext *models.Extraction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	return w.Write(f, ext)
}

// Write writes records in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, ext *models.Extraction) error {
	// Write metadata as comments (CSV header rows)
	if w.IncludeHeader {
		meta := csv.NewWriter(out)
		if ext.Report != "" {
			meta.Write([]string{"# Report", string(ext.Report)})
		}
		if ext.Source != "" {
			meta.Write([]string{"# Source", ext.Source})
		}
		meta.Write([]string{"# Records", strconv.Itoa(len(ext.Records))})
		meta.Flush()
		if err := meta.Error(); err != nil {
			return fmt.Errorf("failed to write CSV metadata: %w", err)
		}
	}

	rows := make([]csvRow, 0, len(ext.Records))
	for _, r := range ext.Records {
		row := csvRow{
			Date:          r.Date,
			ProcessID:     r.ProcessID,
			Name:          r.Name,
			Procedure:     r.Procedure,
			ProcedureCode: r.ProcedureCode,
			Group:         r.Group,
			Specialty:     r.Specialty,
			Entity:        r.Entity,
			Page:          r.Page,
			Source:        r.SourceFile,
		}
		if r.Amount != nil {
			row.Amount = parser.FormatAmount(*r.Amount)
		}
		rows = append(rows, row)
	}

	if err := gocsv.Marshal(&rows, out); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}
