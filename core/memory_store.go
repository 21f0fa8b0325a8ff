package core

import (
	"context"
	"time"
)

// MemoryType classifies persisted memories.
type MemoryType string

const (
	MemoryMessage   MemoryType = "message"
	MemorySummary   MemoryType = "summary"
	MemoryFact      MemoryType = "fact"
	MemoryKnowledge MemoryType = "knowledge"
)

// Memory is a persisted memory record.
type Memory struct {
	ID        string         `json:"id"`
	Type      MemoryType     `json:"type"`
	RoomID    string         `json:"roomId"`
	AgentID   string         `json:"agentId"`
	EntityID  string         `json:"entityId,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// MemoryFilter selects memories. Empty fields match everything. A positive
// Limit keeps only the most recent matches. Results are ordered oldest first.
type MemoryFilter struct {
	Type     MemoryType
	RoomID   string
	AgentID  string
	EntityID string
	Limit    int
}

// Matches reports whether m satisfies the filter (ignoring Limit).
func (f MemoryFilter) Matches(m Memory) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}

	if f.RoomID != "" && m.RoomID != f.RoomID {
		return false
	}

	if f.AgentID != "" && m.AgentID != f.AgentID {
		return false
	}

	if f.EntityID != "" && m.EntityID != f.EntityID {
		return false
	}

	return true
}

// KnowledgeItem is a retrieved knowledge memory with a relevance score.
type KnowledgeItem struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// MemoryStore persists messages, summaries, facts and knowledge.
// Implementations must be safe for concurrent use.
type MemoryStore interface {
	CreateMemory(ctx context.Context, m Memory) (string, error)
	GetMemories(ctx context.Context, filter MemoryFilter) ([]Memory, error)
	DeleteMemories(ctx context.Context, ids []string) error
	SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeItem, error)
}
