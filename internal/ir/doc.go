// Package ir provides the pipeline description types for nestc: scalar
// types and numerics, the expression IR, the Function graph, schedules and
// the error taxonomy shared by every later phase.
//
// This package imports nothing internal. All other internal packages import
// ir, which keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Expr and Directive are sealed interfaces; consumers switch over them
//     exhaustively
//   - Functions live in an arena and are referenced by FuncID, never by
//     pointer, so a Function may be read by many consumers without cyclic
//     ownership
//   - Index variables are identified by name
//   - The first domain variable is the innermost loop and the contiguous
//     buffer dimension
package ir
