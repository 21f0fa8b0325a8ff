package core

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Content is the payload carried by a Message.
type Content struct {
	Text        string       `json:"text"`
	Targets     []string     `json:"targets,omitempty"`     // Recipients (entity or channel ids)
	Attachments []Attachment `json:"attachments,omitempty"` // Opaque attachment references
	Actions     []string     `json:"actions,omitempty"`     // Explicitly requested actions (chaining hint)
	Source      string       `json:"source,omitempty"`      // Integration the message arrived from
}

// Attachment references external media attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Message is a single unit of conversation. Messages are treated as
// immutable once created; helpers return modified copies.
type Message struct {
	ID        string         `json:"id"`
	RoomID    string         `json:"roomId"`
	EntityID  string         `json:"entityId"`
	AgentID   string         `json:"agentId,omitempty"`
	Content   Content        `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh id and the current timestamp.
func NewMessage(roomID, entityID, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		EntityID:  entityID,
		Content:   Content{Text: text},
		CreatedAt: time.Now(),
	}
}

// Validate reports whether the message carries the identifiers every
// component relies on. It is the only fatal check of a turn.
func (m *Message) Validate() error {
	if m == nil {
		return NewError(CodeInvalidInput, "message is nil")
	}

	var missing []string

	if strings.TrimSpace(m.ID) == "" {
		missing = append(missing, "id")
	}

	if strings.TrimSpace(m.RoomID) == "" {
		missing = append(missing, "roomId")
	}

	if strings.TrimSpace(m.EntityID) == "" {
		missing = append(missing, "entityId")
	}

	if len(missing) > 0 {
		return NewError(CodeInvalidInput, "message missing "+strings.Join(missing, ", "))
	}

	return nil
}

// RequestsChaining reports whether the sender explicitly asked for more than
// one action in this turn.
func (m *Message) RequestsChaining() bool {
	return m != nil && len(m.Content.Actions) > 1
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	cp := *m
	cp.Content.Targets = slices.Clone(m.Content.Targets)
	cp.Content.Attachments = slices.Clone(m.Content.Attachments)
	cp.Content.Actions = slices.Clone(m.Content.Actions)
	cp.Metadata = maps.Clone(m.Metadata)

	return &cp
}

// Reply builds a new outbound message from the agent in the same room.
func (m *Message) Reply(agentID, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		RoomID:    m.RoomID,
		EntityID:  agentID,
		AgentID:   agentID,
		Content:   Content{Text: text, Targets: []string{m.EntityID}, Source: m.Content.Source},
		CreatedAt: time.Now(),
		Metadata:  map[string]any{"inReplyTo": m.ID},
	}
}
