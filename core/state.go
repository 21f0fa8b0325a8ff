package core

import (
	"maps"
	"slices"
	"strings"
)

// StateBlock is the text contributed by a single provider.
type StateBlock struct {
	Provider string `json:"provider"`
	Text     string `json:"text"`
}

// ProviderFailure records a provider that failed or timed out during
// composition. Its block is empty.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Code     Code   `json:"code"`
	Message  string `json:"message"`
}

// State is the per-turn context assembled from providers. It is never
// persisted and is treated as read-only once composed.
type State struct {
	Blocks   []StateBlock      `json:"blocks"`
	Text     string            `json:"text"`
	Values   map[string]any    `json:"values"`
	Data     map[string]any    `json:"data"`
	Failures []ProviderFailure `json:"failures,omitempty"`
}

// NewState returns an empty state with initialized maps.
func NewState() *State {
	return &State{
		Values: map[string]any{},
		Data:   map[string]any{},
	}
}

// JoinBlocks concatenates non-empty block texts separated by a blank line.
func JoinBlocks(blocks []StateBlock) string {
	parts := make([]string, 0, len(blocks))

	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}

	return strings.Join(parts, "\n\n")
}

// Value returns a value by key.
func (s *State) Value(key string) (any, bool) {
	if s == nil {
		return nil, false
	}

	v, ok := s.Values[key]

	return v, ok
}

// String returns a string value, or "" when absent or not a string.
func (s *State) String(key string) string {
	v, _ := s.Value(key)
	str, _ := v.(string)

	return str
}

// Clone returns a copy whose maps and slices can be changed independently.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}

	cp := &State{
		Blocks:   slices.Clone(s.Blocks),
		Text:     s.Text,
		Values:   maps.Clone(s.Values),
		Data:     maps.Clone(s.Data),
		Failures: slices.Clone(s.Failures),
	}

	if cp.Values == nil {
		cp.Values = map[string]any{}
	}

	if cp.Data == nil {
		cp.Data = map[string]any{}
	}

	return cp
}

// WithValues returns a copy of the state with the given values overlaid.
func (s *State) WithValues(values map[string]any) *State {
	cp := s.Clone()
	maps.Copy(cp.Values, values)

	return cp
}
