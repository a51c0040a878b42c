package sheet

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

func TestLayoutFor(t *testing.T) {
	for _, report := range models.ReportTypes {
		l, err := LayoutFor(report)
		require.NoError(t, err, report)
		assert.NoError(t, l.Validate())
		assert.Equal(t, "C", l.Offset)

		width := len(l.Row(models.Record{}, time.Now()))
		assert.Equal(t, len(l.Header), width, "header and row width of %s", report)
		for _, c := range l.KeyColumns {
			assert.Less(t, c, width)
		}
	}

	_, err := LayoutFor("bank")
	assert.ErrorIs(t, err, ErrInvalidLayout)
	assert.ErrorIs(t, Layout{Sheet: "X"}.Validate(), ErrInvalidLayout)
}

func TestLayout_FeesRow(t *testing.T) {
	l, err := LayoutFor(models.ReportFees)
	require.NoError(t, err)

	v := decimal.RequireFromString("-121.41")
	rec := models.Record{
		Date: "03-01-2024", ProcessID: "654321", Name: "JOSE COSTA",
		Amount: &v, Procedure: "Consulta", Entity: "ADSE", SourceFile: "h.pdf",
	}
	at := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)

	assert.Equal(t,
		[]string{"03-01-2024", "654321", "JOSE COSTA", "-121,41", "Consulta", "ADSE", "01-02-2024 09:30", "h.pdf"},
		l.Row(rec, at))

	rec.Amount = nil
	assert.Equal(t, "", l.Row(rec, at)[3])
}

func TestWorkbook_AppendCreatesSheet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "faturacao.xlsx")
	l, err := LayoutFor(models.ReportAnesthesia)
	require.NoError(t, err)

	wb := NewWorkbook(path)
	rows, err := wb.Rows(ctx, l)
	require.NoError(t, err)
	assert.Empty(t, rows)

	first, err := wb.Append(ctx, l, [][]string{
		{"17-05-2021", "123456", "ANA MARIA COSTA", "Artroscopia", "01-06-2021 10:00", "a.pdf"},
		{"17-05-2021", "98765", "JOAO PEDRO ALVES", "Cistoscopia", "01-06-2021 10:00", "a.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	rows, err = wb.Rows(ctx, l)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "98765", rows[1][1])

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	header, err := f.GetCellValue(l.Sheet, "C1")
	require.NoError(t, err)
	assert.Equal(t, l.Header[0], header)
}

func TestWorkbook_AppendKeepsLeftColumns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "faturacao.xlsx")
	l, err := LayoutFor(models.ReportConsultations)
	require.NoError(t, err)

	f := excelize.NewFile()
	_, err = f.NewSheet(l.Sheet)
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue(l.Sheet, "C1", "Data"))
	require.NoError(t, f.SetSheetRow(l.Sheet, "C2", &[]interface{}{"01-06-2021", "111", "ANA LOPES"}))
	require.NoError(t, f.SetCellFormula(l.Sheet, "A3", "MONTH(C3)"))
	require.NoError(t, f.SetCellValue(l.Sheet, "B3", "manual"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	wb := NewWorkbook(path)
	existing, err := wb.Rows(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"01-06-2021", "111", "ANA LOPES"}}, existing)

	first, err := wb.Append(ctx, l, [][]string{{"05-06-2021", "555", "JOAO PINTO", "05-06-2021 10:00", "c.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, 3, first)

	f, err = excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	formula, err := f.GetCellFormula(l.Sheet, "A3")
	require.NoError(t, err)
	assert.Equal(t, "MONTH(C3)", formula)
	manual, _ := f.GetCellValue(l.Sheet, "B3")
	assert.Equal(t, "manual", manual)
	date, _ := f.GetCellValue(l.Sheet, "C3")
	assert.Equal(t, "05-06-2021", date)
	source, _ := f.GetCellValue(l.Sheet, "G3")
	assert.Equal(t, "c.pdf", source)
}

func TestWorkbook_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l, _ := LayoutFor(models.ReportConsultations)

	_, err := NewWorkbook(filepath.Join(t.TempDir(), "x.xlsx")).Append(ctx, l, [][]string{{"a"}})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeStore struct {
	calls  int
	failOn int
	sizes  []int
}

func (s *fakeStore) Rows(context.Context, Layout) ([][]string, error) { return nil, nil }

func (s *fakeStore) Append(_ context.Context, _ Layout, rows [][]string) (int, error) {
	s.calls++
	if s.calls == s.failOn {
		return 0, errors.New("quota exceeded")
	}
	s.sizes = append(s.sizes, len(rows))
	return 10 * s.calls, nil
}

func TestAppendBatched(t *testing.T) {
	l, _ := LayoutFor(models.ReportConsultations)
	rows := make([][]string, 5)
	opts := BatchOptions{Size: 2, Pause: time.Millisecond}

	store := &fakeStore{}
	written, first, err := AppendBatched(context.Background(), store, l, rows, opts)
	require.NoError(t, err)
	assert.Equal(t, 5, written)
	assert.Equal(t, 10, first)
	assert.Equal(t, []int{2, 2, 1}, store.sizes)
}

func TestAppendBatched_FailureReportsProgress(t *testing.T) {
	l, _ := LayoutFor(models.ReportConsultations)
	rows := make([][]string, 5)

	store := &fakeStore{failOn: 2}
	written, _, err := AppendBatched(context.Background(), store, l, rows, BatchOptions{Size: 2, Pause: time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append rows 3-4")
	assert.Equal(t, 2, written)
	assert.Equal(t, 2, store.calls)
}
