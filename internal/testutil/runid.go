package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialRunIDs names invocations "<prefix>-run-1", "<prefix>-run-2", ...
// It implements engine.RunIDGenerator and never runs out, unlike
// engine.FixedGenerator. Safe for concurrent use.
type SequentialRunIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialRunIDs creates a generator. An empty prefix means "test".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "test"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialRunIDs) Generate() string {
	return fmt.Sprintf("%s-run-%d", g.prefix, g.n.Add(1))
}
