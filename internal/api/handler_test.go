package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/medical-billing-extractor/internal/metrics"
	"github.com/insightdelivered/medical-billing-extractor/internal/pipeline"
	"github.com/insightdelivered/medical-billing-extractor/internal/sheet"
)

const feesText = `Mapa de Honorários - Detalhe
Consultas
03-01-24 123456MARIA SILVA Ortopedia 12 ADSE 10012345Consulta 1 50.00
04-01-24 999000RUI LOPES Oftalmologia 12 ADSE 30011111Catarata 1 300.00`

type memStore struct {
	rows [][]string
}

func (m *memStore) Rows(context.Context, sheet.Layout) ([][]string, error) {
	return m.rows, nil
}

func (m *memStore) Append(_ context.Context, _ sheet.Layout, rows [][]string) (int, error) {
	first := len(m.rows) + 2
	m.rows = append(m.rows, rows...)
	return first, nil
}

func setupTestApp(h *Handler) *fiber.App {
	app := fiber.New()
	h.RegisterRoutes(app)
	return app
}

func uploadRequest(t *testing.T, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeConvert(t *testing.T, resp *http.Response) ConvertResponse {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out ConvertResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	app := setupTestApp(&Handler{})

	req := httptest.NewRequest("GET", "/api/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result map[string]string
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", result["status"])
	}
	if result["engine"] != "fiber" {
		t.Errorf("expected engine=fiber, got %q", result["engine"])
	}
	if result["version"] != Version {
		t.Errorf("expected version=%s, got %q", Version, result["version"])
	}
}

func TestConvertEndpointRequiresFile(t *testing.T) {
	app := setupTestApp(&Handler{})

	resp, err := app.Test(uploadRequest(t, "", map[string]string{"report": "fees"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	out := decodeConvert(t, resp)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "No file uploaded")
}

func TestConvertEndpointRejectsNonPDF(t *testing.T) {
	app := setupTestApp(&Handler{})

	resp, err := app.Test(uploadRequest(t, "mapa.xlsx", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeConvert(t, resp).Error, "Only PDF")
}

func TestConvertEndpointUnknownReport(t *testing.T) {
	app := setupTestApp(&Handler{})

	resp, err := app.Test(uploadRequest(t, "mapa.pdf", map[string]string{
		"extractedText": feesText,
		"report":        "bank",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decodeConvert(t, resp).Error, "Unknown report")
}

func TestConvertEndpointLayoutNeedsWords(t *testing.T) {
	app := setupTestApp(&Handler{})

	resp, err := app.Test(uploadRequest(t, "consultas.pdf", map[string]string{
		"extractedText": "2021-06-05 HCIS/123456 MARIA SILVA Consulta",
		"report":        "consultations",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decodeConvert(t, resp).Error, "word positions")
}

func TestConvertEndpointExtractedText(t *testing.T) {
	m := metrics.New()
	app := setupTestApp(&Handler{Service: &pipeline.Service{Metrics: m}, Metrics: m})

	resp, err := app.Test(uploadRequest(t, "mapa.pdf", map[string]string{
		"extractedText": feesText,
		"report":        "fees",
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeConvert(t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, "fees", out.Report)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "MARIA SILVA", out.Records[0].Name)
	assert.Zero(t, out.Written)
	assert.Contains(t, out.CSV, "MARIA SILVA")
	assert.Contains(t, out.CSV, "300,00")
	assert.Contains(t, out.RawText, "Mapa de Honorários")
}

func TestConvertEndpointAutoDetectAndAppend(t *testing.T) {
	store := &memStore{}
	app := setupTestApp(&Handler{Service: &pipeline.Service{Store: store, Batch: sheet.BatchOptions{Size: 10}}})

	fields := map[string]string{"extractedText": feesText, "append": "true"}
	resp, err := app.Test(uploadRequest(t, "mapa.pdf", fields))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeConvert(t, resp)
	assert.Equal(t, "fees", out.Report)
	assert.Equal(t, 2, out.Written)
	assert.Equal(t, 2, out.FirstRow)
	assert.Len(t, store.rows, 2)

	resp, err = app.Test(uploadRequest(t, "mapa.pdf", fields))
	require.NoError(t, err)
	out = decodeConvert(t, resp)
	assert.Zero(t, out.Count)
	assert.Equal(t, 2, out.Duplicates)
	assert.Len(t, store.rows, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	app := setupTestApp(&Handler{Metrics: metrics.New()})

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// own registry, no process collectors
	body, _ := io.ReadAll(resp.Body)
	assert.False(t, strings.Contains(string(body), "go_goroutines"))
}

func TestMetricsEndpointDisabled(t *testing.T) {
	app := setupTestApp(&Handler{})

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
