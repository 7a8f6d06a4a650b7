package gtfsgeneral

import (
	"context"
	"runtime"
	"sync"
)

// defaultChunkSize bounds how many rows a single worker job carries.
const defaultChunkSize = 8192

// chunk is a half-open row range [start, end) of a table, tagged with its
// partition index so merge can reassemble input order regardless of which
// worker finished first.
type chunk struct {
	index int
	start int
	end   int
}

func partitionRows(n, chunkSize int) []chunk {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	chunks := make([]chunk, 0, n/chunkSize+1)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunks = append(chunks, chunk{index: len(chunks), start: start, end: end})
	}
	return chunks
}

// keepFunc decides whether a row survives. Predicates depend only on
// previously computed keep-sets, never on other rows, so chunks are
// independent.
type keepFunc func(row []string) bool

// mapFilter applies keep to every row of a table across a bounded worker
// pool and merges the surviving rows back in partition order, so output row
// order is input order restricted to survivors. The table and the predicate's
// captured keep-sets are never mutated.
//
// Cancellation is coarse-grained: the context is checked between chunks, not
// within one.
func mapFilter(ctx context.Context, t *Table, keep keepFunc, workers, chunkSize int) (*Table, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	chunks := partitionRows(t.Len(), chunkSize)
	results := make([][][]string, len(chunks))

	// Bounded job queue: submission blocks once every worker is busy instead
	// of buffering the whole table.
	jobs := make(chan chunk, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				if ctx.Err() != nil {
					continue
				}
				var kept [][]string
				for _, row := range t.Rows[c.start:c.end] {
					if keep(row) {
						kept = append(kept, row)
					}
				}
				results[c.index] = kept
			}
		}()
	}

submit:
	for _, c := range chunks {
		select {
		case jobs <- c:
		case <-ctx.Done():
			break submit
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := t.empty()
	for _, kept := range results {
		out.Rows = append(out.Rows, kept...)
	}
	return out, nil
}
