package engine

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// pool runs the iterations of parallel loops on at most workers goroutines.
// Iterations are split into contiguous chunks before any work starts, so no
// scheduling state is shared while chunks run.
type pool struct {
	workers int
}

func newPool(workers int) *pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &pool{workers: workers}
}

// chunk is iterations [lo, hi).
type chunk struct {
	lo, hi int64
}

// partition splits n iterations into at most parts contiguous chunks whose
// sizes differ by at most one. Every iteration is in exactly one chunk.
func partition(n int64, parts int) []chunk {
	if n <= 0 || parts <= 0 {
		return nil
	}
	p := min(int64(parts), n)
	size, rem := n/p, n%p
	out := make([]chunk, 0, p)
	lo := int64(0)
	for i := int64(0); i < p; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		out = append(out, chunk{lo: lo, hi: hi})
		lo = hi
	}
	return out
}

// run executes body over n iterations split across the pool. Each chunk gets
// its own copy of fr's variables. A panic in a chunk becomes its error; the
// first error stops chunks that have not started.
func (p *pool) run(fr *frame, n int64, body rangeRunner) error {
	chunks := partition(n, p.workers)
	switch len(chunks) {
	case 0:
		return nil
	case 1:
		return body(fr, chunks[0].lo, chunks[0].hi)
	}

	g, ctx := errgroup.WithContext(fr.inv.ctx)
	g.SetLimit(p.workers)
	for _, c := range chunks {
		local := fr.clone()
		g.Go(func() (err error) {
			if err := ctx.Err(); err != nil {
				return err
			}
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("parallel chunk [%d, %d): %v", c.lo, c.hi, r)
				}
			}()
			return body(local, c.lo, c.hi)
		})
	}
	return g.Wait()
}
