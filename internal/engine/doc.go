// Package engine turns a lowered loop-nest program into an in-process
// callable Artifact and runs it.
//
// EMISSION:
//
// Emit compiles every expression of the program into a tree of closures
// once. Names are resolved to slots at that point: loop and let variables
// index a per-frame []int64, scalars and buffers index the invocation. No
// map lookups happen while a pipeline runs.
//
// Values follow the register model of package ir: Bool and integer values
// are int64, floating-point values float64 rounded to their declared type
// after every operation. The same ir helpers back the reference semantics,
// so a schedule never changes a result.
//
// EXECUTION STRATEGIES:
//
//   - Serial loops iterate in order.
//   - Vectorized loops (innermost only) evaluate a block of width lanes
//     before storing any of them, then run the tail one lane at a time.
//   - Unrolled loops call factor copies of the body per block, then run a
//     remainder loop.
//   - Parallel loops split their trip count into contiguous chunks run on a
//     bounded errgroup pool. A parallel loop nested in another runs serially.
//
// ATOMIC OUTPUTS:
//
// Stages write outputs into staging buffers. Caller buffers are written only
// after the last stage succeeds, so a failed invocation leaves them as they
// were. Signature errors are reported before any allocation.
package engine
