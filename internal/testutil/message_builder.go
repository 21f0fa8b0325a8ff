package testutil

import (
	"github.com/hupe1980/cognimesh/core"
)

// MessageBuilder helps construct messages with fluent chaining for tests.
// Example:
//
//	msg := NewMessageBuilder("room-1", "user-1").Text("hi").Actions("REPLY", "SEND_MESSAGE").Build()
type MessageBuilder struct {
	msg *core.Message
}

// NewMessageBuilder creates a builder for a message in room sent by entity.
func NewMessageBuilder(roomID, entityID string) *MessageBuilder {
	return &MessageBuilder{msg: core.NewMessage(roomID, entityID, "")}
}

// ID overrides the generated message id (chainable).
func (b *MessageBuilder) ID(id string) *MessageBuilder {
	b.msg.ID = id
	return b
}

// Text sets the message text (chainable).
func (b *MessageBuilder) Text(text string) *MessageBuilder {
	b.msg.Content.Text = text
	return b
}

// Agent sets the agent the message is addressed to (chainable).
func (b *MessageBuilder) Agent(agentID string) *MessageBuilder {
	b.msg.AgentID = agentID
	return b
}

// Actions sets explicitly requested actions (chainable).
func (b *MessageBuilder) Actions(names ...string) *MessageBuilder {
	b.msg.Content.Actions = append(b.msg.Content.Actions, names...)
	return b
}

// Targets sets message recipients (chainable).
func (b *MessageBuilder) Targets(targets ...string) *MessageBuilder {
	b.msg.Content.Targets = append(b.msg.Content.Targets, targets...)
	return b
}

// Build returns the message.
func (b *MessageBuilder) Build() *core.Message {
	return b.msg.Clone()
}
