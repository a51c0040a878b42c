package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GeminiOptions configures the Gemini generateContent client.
type GeminiOptions struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

func (o *GeminiOptions) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if o.Model == "" {
		o.Model = "gemini-2.0-flash"
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
}

// Gemini is a Generator backed by the Google Generative Language API.
type Gemini struct {
	hc          *http.Client
	url         string
	apiKey      string
	temperature float64
}

// NewGemini builds a Gemini client. An API key is required.
func NewGemini(opts GeminiOptions) (*Gemini, error) {
	opts.defaults()
	if opts.APIKey == "" {
		return nil, errors.New("gemini: missing api key")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	endpoint := strings.TrimRight(opts.BaseURL, "/") +
		"/v1beta/models/" + url.PathEscape(opts.Model) + ":generateContent"
	return &Gemini{hc: hc, url: endpoint, apiKey: opts.APIKey, temperature: opts.Temperature}, nil
}

type gmPart struct {
	Text string `json:"text"`
}

type gmContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []gmPart `json:"parts"`
}

type gmGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type gmReq struct {
	Contents         []gmContent         `json:"contents"`
	GenerationConfig *gmGenerationConfig `json:"generationConfig,omitempty"`
}

type gmResp struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends a single-turn prompt. HTTP 429 maps to ErrRateLimited.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(&gmReq{
		Contents:         []gmContent{{Role: "user", Parts: []gmPart{{Text: prompt}}}},
		GenerationConfig: &gmGenerationConfig{Temperature: g.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: encode: %w", err)
	}

	u, err := url.Parse(g.url)
	if err != nil {
		return "", fmt.Errorf("gemini: invalid url: %w", err)
	}
	q := u.Query()
	q.Set("key", g.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("gemini upstream %d: %s", resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	var gr gmResp
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("gemini: decode: %w", ErrMalformedResponse)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", ErrMalformedResponse
	}
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
