// Package store provides the SQLite-backed registry of compiled artifacts
// and the runs made with them.
//
// The registry is append-only:
//   - Artifacts: encoded loop-nest programs, keyed by content hash
//   - Runs: one record per invocation of an artifact
//
// # Critical Patterns
//
// Content identity:
//   - artifacts.id is ir.ArtifactID of the encoded program
//   - artifacts.pipeline_id is ir.PipelineID of the graph and its schedules
//   - A second compile of the same pipeline finds the first artifact
//
// Logical time:
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - All queries order by seq ASC, id ASC COLLATE BINARY
//
// Idempotent writes:
//   - Every INSERT uses ON CONFLICT DO NOTHING
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
