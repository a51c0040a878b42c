package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

func glyphs(y float64, x float64, s string) []pdf.Text {
	var out []pdf.Text
	for _, r := range s {
		out = append(out, pdf.Text{S: string(r), X: x, Y: y, W: 5, FontSize: 10})
		x += 5
	}
	return out
}

func TestWordsFromGlyphs(t *testing.T) {
	var in []pdf.Text
	in = append(in, glyphs(700, 20, "HCIS/123")...)
	in = append(in, pdf.Text{S: " ", X: 60, Y: 700, W: 3, FontSize: 10})
	in = append(in, glyphs(700, 160, "MARIA")...)
	in = append(in, glyphs(690, 160, "SILVA")...)
	in = append(in, pdf.Text{S: "", X: 0, Y: 0})

	words := wordsFromGlyphs(in, 800)
	require.Len(t, words, 3)

	assert.Equal(t, models.Word{Text: "HCIS/123", X0: 20, Top: 100}, words[0])
	assert.Equal(t, models.Word{Text: "MARIA", X0: 160, Top: 100}, words[1])
	assert.Equal(t, models.Word{Text: "SILVA", X0: 160, Top: 110}, words[2])
}

func TestWordsFromGlyphs_UnknownHeight(t *testing.T) {
	words := wordsFromGlyphs(glyphs(500, 10, "ANA"), 0)
	require.Len(t, words, 1)
	assert.Equal(t, 0.0, words[0].Top)
}

func TestTextFromWords(t *testing.T) {
	words := []models.Word{
		{Text: "2021-06-05", X0: 20, Top: 100},
		{Text: "HCIS/1", X0: 100, Top: 100.5},
		{Text: "DA", X0: 160, Top: 110},
	}
	assert.Equal(t, "2021-06-05 HCIS/1\nDA", textFromWords(words))
	assert.Equal(t, "", textFromWords(nil))
}

func TestIsReadableText(t *testing.T) {
	tests := []struct {
		name     string
		pages    []string
		expected bool
	}{
		{
			"billing report",
			[]string{"Mapa de Honorários - Detalhe\nData Doente Processo Valor\n03-01-24 123456MARIA SILVA Ortopedia 12 ADSE 1 50.00"},
			true,
		},
		{"too short", []string{"Total 42"}, false},
		{"binary garbage", []string{strings.Repeat("\x00\x01\x02\x03\x04", 30)}, false},
		{"no known words", []string{strings.Repeat("lorem ipsum dolor sit amet ", 5)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsReadableText(tt.pages); got != tt.expected {
				t.Errorf("IsReadableText: got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTextQuality(t *testing.T) {
	assert.Equal(t, 0.0, textQuality(nil))
	assert.Equal(t, 1.0, textQuality([]string{"Nº Processo: 123, Valor 50.00€"}))
	assert.Less(t, textQuality([]string{"ab\x00\x00"}), 0.6)
}

// writePDF writes a one-page PDF whose MediaBox lives on the page tree root.
func writePDF(t *testing.T, text string) string {
	t.Helper()
	content := fmt.Sprintf("BT /F1 12 Tf 20 700 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	path := filepath.Join(t.TempDir(), "listagem.pdf")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestExtractDocument_InheritedMediaBox(t *testing.T) {
	path := writePDF(t, "Mapa de Honorarios Detalhe Data Doente Processo Valor Consulta")

	doc, err := ExtractDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "listagem.pdf", doc.Name)
	require.Len(t, doc.Pages, 1)
	assert.Contains(t, doc.Pages[0].Text, "Mapa de Honorarios")

	words := doc.Pages[0].Words
	require.NotEmpty(t, words)
	assert.Equal(t, "Mapa", words[0].Text)
	for _, w := range words {
		assert.InDelta(t, 92.0, w.Top, 0.5, "word %q", w.Text)
	}
}

func TestMediaBox_Missing(t *testing.T) {
	assert.True(t, mediaBox(pdf.Value{}).IsNull())
	assert.Equal(t, 0.0, boxHeight(pdf.Value{}))
}

func TestExtractDocument_MissingFile(t *testing.T) {
	_, err := ExtractDocument(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}
