package extractor

import (
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

// ExtractDocument reads a PDF file and returns the text and positioned
// words of each page. If the structured PDF library fails, it falls back to
// the external pdftotext command (poppler-utils), which yields text only.
func ExtractDocument(filePath string) (models.Document, error) {
	doc := models.Document{Name: filepath.Base(filePath)}

	pages, libErr := extractWithLibrary(filePath)
	if libErr == nil && isReadableText(texts(pages)) {
		doc.Pages = pages
		return doc, nil
	}

	// Library failed or returned garbage, try external pdftotext as last resort
	popplerPages, popplerErr := extractWithPdftotext(filePath)
	if popplerErr == nil && isReadableText(popplerPages) {
		for i, t := range popplerPages {
			doc.Pages = append(doc.Pages, models.Page{Number: i + 1, Text: t})
		}
		return doc, nil
	}

	if libErr != nil {
		return doc, fmt.Errorf("PDF text extraction failed: %v. The PDF may be image-based/scanned", libErr)
	}
	return doc, fmt.Errorf("no readable text could be extracted from PDF. The file may be image-based/scanned or use custom font encodings")
}

func texts(pages []models.Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Text
	}
	return out
}

// textQuality returns the ratio of readable characters (letters, digits,
// whitespace, common punctuation) to total characters. Returns 0.0-1.0.
func textQuality(pages []string) float64 {
	total := 0
	readable := 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) ||
				strings.ContainsRune(".,-/:;()'\"€$%&@#!?+=*ºª", r) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// commonWords that appear in virtually all billing listings.
// If the extracted text contains none of these, it's likely garbage.
var commonWords = []string{
	"data", "processo", "nome", "doente", "total", "valor", "página",
	"listagem", "hospital", "consulta", "honor", "anestesi", "exame",
	"utilizador", "entidade", "registos",
}

// containsCommonWords checks whether the text contains at least one word
// that would be expected in a billing report.
func containsCommonWords(pages []string) bool {
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, word := range commonWords {
		if strings.Contains(combined, word) {
			return true
		}
	}
	return false
}

// isReadableText checks that pages contain enough text, that it's actually
// readable (not binary garbage), AND that it contains recognizable words.
func isReadableText(pages []string) bool {
	if totalTextLen(pages) <= 50 {
		return false
	}
	if textQuality(pages) <= 0.6 {
		return false
	}
	return containsCommonWords(pages)
}

// IsReadableText is the exported version for use by other packages.
func IsReadableText(pages []string) bool {
	return isReadableText(pages)
}

// extractWithPdftotext uses the external pdftotext command from poppler-utils
// as a fallback for PDFs that the Go library cannot handle.
func extractWithPdftotext(filePath string) ([]string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %v", err)
	}

	numPages := 1
	if out, err := exec.Command("pdfinfo", filePath).Output(); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if strings.HasPrefix(line, "Pages:") {
				n, parseErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
				if parseErr == nil && n > 0 {
					numPages = n
				}
			}
		}
	}

	// Extract each page separately to preserve page boundaries
	var pages []string
	for i := 1; i <= numPages; i++ {
		pageStr := strconv.Itoa(i)
		out, err := exec.Command("pdftotext", "-layout", "-f", pageStr, "-l", pageStr, filePath, "-").Output()
		if err != nil {
			continue
		}
		pages = append(pages, strings.TrimSpace(string(out)))
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdftotext produced no output")
	}
	return pages, nil
}

// extractWithLibrary uses ledongthuc/pdf for text rows and positioned words.
func extractWithLibrary(filePath string) (pages []models.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	f, r, openErr := pdf.Open(filePath)
	if openErr != nil {
		return nil, openErr
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		p := models.Page{
			Number: i,
			Text:   pageTextByRow(page),
			Words:  wordsFromGlyphs(content.Text, pageHeight(page)),
		}
		if p.Text == "" {
			p.Text = textFromWords(p.Words)
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// pageTextByRow joins the library's text rows, top to bottom.
func pageTextByRow(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}
	var lines []string
	for _, row := range rows {
		var parts []string
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		line := strings.TrimSpace(strings.Join(parts, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// pageHeight reads the MediaBox height, or 0 when the page has none.
// MediaBox is inheritable, so the page tree is walked up to the root.
func pageHeight(page pdf.Page) float64 {
	return boxHeight(mediaBox(page.V))
}

// maxTreeDepth bounds the Parent walk on malformed page trees.
const maxTreeDepth = 32

func mediaBox(v pdf.Value) pdf.Value {
	for depth := 0; !v.IsNull() && depth < maxTreeDepth; depth, v = depth+1, v.Key("Parent") {
		if box := v.Key("MediaBox"); !box.IsNull() {
			return box
		}
	}
	return pdf.Value{}
}

func boxHeight(box pdf.Value) float64 {
	if box.Len() != 4 {
		return 0
	}
	return box.Index(3).Float64() - box.Index(1).Float64()
}

// wordsFromGlyphs merges the per-glyph text pieces of a page into words.
// Glyphs on the same baseline join while the horizontal gap stays below a
// fraction of the font size; spaces always split. Top is measured from the
// top of the page, falling back to the highest glyph when height is unknown.
func wordsFromGlyphs(glyphs []pdf.Text, height float64) []models.Word {
	items := make([]pdf.Text, 0, len(glyphs))
	maxY := 0.0
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		items = append(items, g)
		maxY = math.Max(maxY, g.Y)
	}
	if height <= 0 {
		height = maxY
	}
	sort.SliceStable(items, func(a, b int) bool {
		if math.Abs(items[a].Y-items[b].Y) > 1 {
			return items[a].Y > items[b].Y
		}
		return items[a].X < items[b].X
	})

	var words []models.Word
	var cur strings.Builder
	var curX, curY, endX float64
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			words = append(words, models.Word{Text: s, X0: curX, Top: height - curY})
		}
		cur.Reset()
	}

	for _, g := range items {
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}
		tolerance := math.Max(g.FontSize*0.25, 1)
		sameWord := cur.Len() > 0 &&
			math.Abs(g.Y-curY) <= 1 &&
			g.X-endX <= tolerance
		if !sameWord {
			flush()
			curX, curY = g.X, g.Y
		}
		cur.WriteString(g.S)
		endX = g.X + g.W
	}
	flush()
	return words
}

// textFromWords rebuilds page text from positioned words, one line per row.
func textFromWords(words []models.Word) string {
	var lines []string
	var line []string
	lastTop := math.Inf(-1)
	for _, w := range words {
		if len(line) > 0 && math.Abs(w.Top-lastTop) > 1 {
			lines = append(lines, strings.Join(line, " "))
			line = nil
		}
		line = append(line, w.Text)
		lastTop = w.Top
	}
	if len(line) > 0 {
		lines = append(lines, strings.Join(line, " "))
	}
	return strings.Join(lines, "\n")
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}
