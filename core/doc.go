// Package core provides the foundational domain types and collaborator
// interfaces shared by every cognimesh component:
//
//   - Message (an immutable inbound or outbound unit of conversation)
//   - State (the per-turn context assembled by providers)
//   - ActionResult (the outcome of a single action handler)
//   - Memory / MemoryStore (persistent messages, summaries, facts, knowledge)
//   - Settings (read-only agent configuration with secret redaction)
//   - Error (coded errors used across the pipeline)
//
// Implementation concerns (provider fan-out, model invocation, dispatching,
// planning) live in their own packages and only depend on these types.
package core
