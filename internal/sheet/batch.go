package sheet

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// BatchOptions controls chunked appends.
type BatchOptions struct {
	Size  int           // rows per append, default 500
	Pause time.Duration // minimum gap between appends, default 1s
}

func (o *BatchOptions) defaults() {
	if o.Size <= 0 {
		o.Size = 500
	}
	if o.Pause <= 0 {
		o.Pause = time.Second
	}
}

// AppendBatched appends rows in chunks, waiting between chunks to stay under
// the store's write rate. On failure it returns how many rows were written
// before the failing chunk. Failed chunks are not retried.
func AppendBatched(ctx context.Context, s Store, l Layout, rows [][]string, opts BatchOptions) (written, firstRow int, err error) {
	opts.defaults()
	limiter := rate.NewLimiter(rate.Every(opts.Pause), 1)

	for start := 0; start < len(rows); start += opts.Size {
		end := min(start+opts.Size, len(rows))
		if err := limiter.Wait(ctx); err != nil {
			return written, firstRow, err
		}
		row, err := s.Append(ctx, l, rows[start:end])
		if err != nil {
			return written, firstRow, fmt.Errorf("append rows %d-%d to %q: %w", start+1, end, l.Sheet, err)
		}
		if start == 0 {
			firstRow = row
		}
		written += end - start
	}
	return written, firstRow, nil
}
