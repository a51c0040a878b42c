package oracle

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

// DefaultChunkSize bounds the text sent in one chunked request.
const DefaultChunkSize = 12000

// SplitChunks cuts text into windows of at most size bytes on line
// boundaries. A single line longer than size becomes a window of its own.
func SplitChunks(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks []string
	var cur strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if cur.Len() > 0 && cur.Len()+len(line)+1 > size {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if strings.TrimSpace(cur.String()) != "" {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// ExtractChunked queries every window of text independently and merges the
// results, keeping the first record seen for each digits-only identifier.
// Records without an identifier are dropped. A failing window is logged and
// skipped; only context cancellation aborts the run.
func ExtractChunked(ctx context.Context, ex Extractor, text string, size int, logger *slog.Logger) ([]RawRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]bool)
	var out []RawRecord
	for i, chunk := range SplitChunks(text, size) {
		recs, err := ex.Extract(ctx, chunk)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			logger.WarnContext(ctx, "oracle.chunk.failed",
				slog.Int("chunk", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, r := range recs {
			id := digits(r.Identifier())
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, r)
		}
	}
	return out, nil
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
