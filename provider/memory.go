package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/cognimesh/core"
)

// NewRecentMessagesProvider renders the newest limit messages of the room.
func NewRecentMessagesProvider(store core.MemoryStore, limit int) Provider {
	return NewFuncProvider(Descriptor{
		Name:        NameRecentMessages,
		Description: "Most recent messages of the conversation",
		Dynamic:     true,
		Position:    10,
	}, func(ctx context.Context, msg *core.Message) (core.ProviderResult, error) {
		mems, err := store.GetMemories(ctx, core.MemoryFilter{Type: core.MemoryMessage, RoomID: msg.RoomID, Limit: limit})
		if err != nil {
			return core.ProviderResult{}, err
		}

		values := map[string]any{"recentMessageCount": len(mems)}
		if len(mems) == 0 {
			return core.ProviderResult{Values: values}, nil
		}

		lines := make([]string, len(mems))
		for i, m := range mems {
			lines[i] = fmt.Sprintf("%s: %s", speaker(m), m.Content)
		}

		return core.ProviderResult{
			Text:   "# Recent messages\n" + strings.Join(lines, "\n"),
			Values: values,
			Data:   map[string]any{"recentMessages": mems},
		}, nil
	})
}

func speaker(m core.Memory) string {
	if m.EntityID != "" {
		return m.EntityID
	}

	if m.AgentID != "" {
		return m.AgentID
	}

	return "unknown"
}

// NewSummaryProvider renders the latest conversation summary of the room.
func NewSummaryProvider(store core.MemoryStore) Provider {
	return NewFuncProvider(Descriptor{
		Name:        NameSummary,
		Description: "Summary of the earlier conversation",
		Dynamic:     true,
		Position:    5,
	}, func(ctx context.Context, msg *core.Message) (core.ProviderResult, error) {
		mems, err := store.GetMemories(ctx, core.MemoryFilter{Type: core.MemorySummary, RoomID: msg.RoomID, Limit: 1})
		if err != nil {
			return core.ProviderResult{}, err
		}

		if len(mems) == 0 {
			return core.ProviderResult{}, nil
		}

		return core.ProviderResult{
			Text:   "# Conversation summary\n" + mems[0].Content,
			Values: map[string]any{"summary": mems[0].Content},
		}, nil
	})
}

// NewFactsProvider renders the newest limit facts known about the sender.
func NewFactsProvider(store core.MemoryStore, limit int) Provider {
	return NewFuncProvider(Descriptor{
		Name:        NameFacts,
		Description: "Long-term facts about the sender",
		Dynamic:     true,
		Position:    20,
	}, func(ctx context.Context, msg *core.Message) (core.ProviderResult, error) {
		mems, err := store.GetMemories(ctx, core.MemoryFilter{Type: core.MemoryFact, EntityID: msg.EntityID, Limit: limit})
		if err != nil {
			return core.ProviderResult{}, err
		}

		if len(mems) == 0 {
			return core.ProviderResult{}, nil
		}

		lines := make([]string, len(mems))
		for i, m := range mems {
			lines[i] = "- " + m.Content
		}

		return core.ProviderResult{
			Text: "# Known facts\n" + strings.Join(lines, "\n"),
			Data: map[string]any{"facts": mems},
		}, nil
	})
}

// NewKnowledgeProvider renders knowledge relevant to the message text.
func NewKnowledgeProvider(store core.MemoryStore, limit int) Provider {
	return NewFuncProvider(Descriptor{
		Name:        NameKnowledge,
		Description: "Knowledge relevant to the message",
		Dynamic:     true,
		Position:    30,
	}, func(ctx context.Context, msg *core.Message) (core.ProviderResult, error) {
		if strings.TrimSpace(msg.Content.Text) == "" {
			return core.ProviderResult{}, nil
		}

		items, err := store.SearchKnowledge(ctx, msg.Content.Text, limit)
		if err != nil {
			return core.ProviderResult{}, err
		}

		if len(items) == 0 {
			return core.ProviderResult{}, nil
		}

		lines := make([]string, len(items))
		for i, it := range items {
			lines[i] = "- " + it.Content
		}

		return core.ProviderResult{
			Text: "# Knowledge\n" + strings.Join(lines, "\n"),
			Data: map[string]any{"knowledge": items},
		}, nil
	})
}
