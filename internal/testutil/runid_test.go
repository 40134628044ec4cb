package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/nestc/internal/engine"
)

var _ engine.RunIDGenerator = (*SequentialRunIDs)(nil)

func TestSequentialRunIDs(t *testing.T) {
	gen := NewSequentialRunIDs("blur")
	assert.Equal(t, "blur-run-1", gen.Generate())
	assert.Equal(t, "blur-run-2", gen.Generate())

	assert.Equal(t, "test-run-1", NewSequentialRunIDs("").Generate())
}

func TestSequentialRunIDs_Concurrent(t *testing.T) {
	gen := NewSequentialRunIDs("p")
	ids := make(chan string, 200)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				ids <- gen.Generate()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 200)
}
