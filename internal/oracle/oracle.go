// Package oracle talks to an external text-generation service that reads a
// page of report text and answers with a JSON array of records. The service
// is untrusted: its replies are scanned for the first well-formed array and
// decoded leniently.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

var (
	// ErrRateLimited is returned by a Generator when the service throttles us.
	ErrRateLimited = errors.New("oracle: rate limited")
	// ErrMalformedResponse means no JSON array could be decoded from the reply.
	ErrMalformedResponse = errors.New("oracle: malformed response")
)

// Generator sends a prompt to a text-generation service and returns its reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extractor turns one page of text into raw records.
type Extractor interface {
	Extract(ctx context.Context, pageText string) ([]RawRecord, error)
}

// RawRecord is one object of the oracle reply. Every field is optional.
type RawRecord struct {
	Date      Text `json:"data"`
	ID        Text `json:"id"`
	Process   Text `json:"processo"`
	HCIS      Text `json:"hcis"`
	Name      Text `json:"nome"`
	Amount    Text `json:"valor"`
	Procedure Text `json:"procedimento"`
	Entity    Text `json:"entidade"`
}

// Identifier returns the first non-empty of id, processo and hcis.
func (r RawRecord) Identifier() string {
	for _, v := range []Text{r.ID, r.Process, r.HCIS} {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

// Text accepts a JSON string, number, boolean or null.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*t = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = Text(v)
	default:
		*t = Text(s)
	}
	return nil
}

// Options configures a Client.
type Options struct {
	Prompt       string
	MaxRetries   uint64        // retries after the first attempt on ErrRateLimited, 0 selects DefaultMaxRetries
	DisableRetry bool          // give up on the first ErrRateLimited
	Backoff      time.Duration // wait before retry n is Backoff*n
	Logger       *slog.Logger
}

// DefaultMaxRetries is used when Options leaves MaxRetries unset.
const DefaultMaxRetries = 2

// Client implements Extractor on top of a Generator.
type Client struct {
	gen    Generator
	opts   Options
	logger *slog.Logger
}

// NewClient returns a Client with the given prompt and retry policy.
func NewClient(gen Generator, opts Options) *Client {
	if opts.DisableRetry {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{gen: gen, opts: opts, logger: logger}
}

// Extract asks the oracle for the records on one page. Rate limiting is
// retried with a linearly growing wait; every other failure is returned
// as is for the caller to degrade.
func (c *Client) Extract(ctx context.Context, pageText string) ([]RawRecord, error) {
	prompt := c.opts.Prompt + "\n\nTEXTO:\n" + pageText

	var reply string
	attempt := 0
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		out, err := c.gen.Generate(ctx, prompt)
		if errors.Is(err, ErrRateLimited) {
			c.logger.WarnContext(ctx, "oracle.extract.retry", slog.Int("attempt", attempt))
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Decode(reply)
}

func (c *Client) backoff() retry.Backoff {
	var n time.Duration
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return c.opts.Backoff * n, false
	})
	return retry.WithMaxRetries(c.opts.MaxRetries, linear)
}

// Decode finds the first JSON array in reply and decodes it.
func Decode(reply string) ([]RawRecord, error) {
	arr, ok := FindJSONArray(reply)
	if !ok {
		return nil, fmt.Errorf("%w: no array in reply", ErrMalformedResponse)
	}
	var out []RawRecord
	if err := json.Unmarshal([]byte(arr), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// FindJSONArray returns the first balanced JSON array of objects in text.
// Brackets inside string literals are not counted, and arrays holding
// anything other than objects, such as "[2]" in prose, are skipped.
func FindJSONArray(text string) (string, bool) {
	for start := strings.IndexByte(text, '['); start >= 0; {
		if end := matchBracket(text, start); end > start {
			candidate := text[start : end+1]
			if isObjectArray(candidate) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func isObjectArray(candidate string) bool {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &items); err != nil {
		return false
	}
	for _, item := range items {
		if len(item) == 0 || item[0] != '{' {
			return false
		}
	}
	return true
}

func matchBracket(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseCount reads a bare integer reply such as "42" or "null".
func ParseCount(reply string) (int, bool) {
	s := strings.Trim(strings.TrimSpace(reply), "`\"")
	if s == "" || strings.EqualFold(s, "null") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
