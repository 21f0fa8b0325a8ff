package testutil

import (
	"context"
	"fmt"

	"github.com/hupe1980/cognimesh/core"
)

// StateBuilder helps construct composed states for tests.
type StateBuilder struct {
	state *core.State
}

// NewStateBuilder creates an empty state builder.
func NewStateBuilder() *StateBuilder {
	return &StateBuilder{state: core.NewState()}
}

// Block appends a provider block (chainable).
func (b *StateBuilder) Block(provider, text string) *StateBuilder {
	b.state.Blocks = append(b.state.Blocks, core.StateBlock{Provider: provider, Text: text})
	return b
}

// Value sets a state value (chainable).
func (b *StateBuilder) Value(key string, val any) *StateBuilder {
	b.state.Values[key] = val
	return b
}

// Data sets a structured data entry (chainable).
func (b *StateBuilder) Data(key string, val any) *StateBuilder {
	b.state.Data[key] = val
	return b
}

// Build returns the state with its text joined from the blocks.
func (b *StateBuilder) Build() *core.State {
	s := b.state.Clone()
	s.Text = core.JoinBlocks(s.Blocks)

	return s
}

// SeedMessages stores n messages "message 1".."message n" in the room and
// returns their ids in insertion order. It panics on store errors.
func SeedMessages(store core.MemoryStore, roomID, entityID string, n int) []string {
	ids := make([]string, 0, n)

	for i := 1; i <= n; i++ {
		id, err := store.CreateMemory(context.Background(), core.Memory{
			Type:     core.MemoryMessage,
			RoomID:   roomID,
			EntityID: entityID,
			Content:  fmt.Sprintf("message %d", i),
		})
		if err != nil {
			panic(err)
		}

		ids = append(ids, id)
	}

	return ids
}
