// Package memory contains concrete core.MemoryStore implementations. The
// store interface and the Memory/KnowledgeItem types reside in the core
// package; depend on core.MemoryStore in your code and select an
// implementation (in-memory here, SQL in memory/sqlstore) at wiring time.
//
// Knowledge search in both stores is keyword based (see ScoreText); swap in
// a vector index for semantic retrieval.
package memory
