package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/internal/testutil"
	"github.com/hupe1980/cognimesh/memory"
)

type catalog struct{ names []string }

func (c catalog) ValidateCandidates(context.Context, *core.Message, *core.State) []string {
	return c.names
}

func (c catalog) Describe(name string) string { return "does " + name }

func TestCharacterAndTime(t *testing.T) {
	ctx := context.Background()
	msg := core.NewMessage("r", "u", "x")

	res, err := NewCharacterProvider(Character{Name: "Eliza", Bio: "A helpful agent."}).Get(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "# About Eliza\nA helpful agent.", res.Text)
	assert.Equal(t, "Eliza", res.Values[core.ValueAgentName])

	fixed := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	res, err = NewTimeProvider(func() time.Time { return fixed }).Get(ctx, msg)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Friday, March 1, 2024 12:30:00 UTC")
	assert.Equal(t, "2024-03-01T12:30:00Z", res.Values["time"])
}

func TestSettingsProvider_RedactsSensitiveKeys(t *testing.T) {
	settings := core.MapSettings{
		"OPENAI_API_KEY": "sk-secret",
		"DB_PASSWORD":    "hunter2",
		"model":          "gpt-4o",
		"language":       "en",
	}

	res, err := NewSettingsProvider(settings).Get(context.Background(), core.NewMessage("r", "u", "x"))
	require.NoError(t, err)

	assert.Equal(t, "# Settings\n- language: en\n- model: gpt-4o", res.Text)
	assert.NotContains(t, res.Text, "sk-secret")
	assert.NotContains(t, res.Text, "hunter2")
	assert.Equal(t, map[string]any{"language": "en", "model": "gpt-4o"}, res.Data["settings"])
}

func TestActionsProvider(t *testing.T) {
	res, err := NewActionsProvider(catalog{names: []string{"REPLY", "NONE"}}).Get(context.Background(), core.NewMessage("r", "u", "x"))
	require.NoError(t, err)
	assert.Equal(t, "# Available actions\n- REPLY: does REPLY\n- NONE: does NONE", res.Text)
	assert.Equal(t, "REPLY, NONE", res.Values["actionNames"])
}

func TestMemoryProviders(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()

	testutil.SeedMessages(store, "room", "user", 5)

	_, err := store.CreateMemory(ctx, core.Memory{Type: core.MemorySummary, RoomID: "room", Content: "old summary"})
	require.NoError(t, err)
	_, err = store.CreateMemory(ctx, core.Memory{Type: core.MemorySummary, RoomID: "room", Content: "new summary"})
	require.NoError(t, err)
	_, err = store.CreateMemory(ctx, core.Memory{Type: core.MemoryFact, RoomID: "other", EntityID: "user", Content: "likes tea"})
	require.NoError(t, err)
	_, err = store.CreateMemory(ctx, core.Memory{Type: core.MemoryKnowledge, Content: "Tea is brewed from leaves"})
	require.NoError(t, err)

	msg := testutil.NewMessageBuilder("room", "user").Text("how is tea made").Build()

	res, err := NewRecentMessagesProvider(store, 2).Get(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "# Recent messages\nuser: message 4\nuser: message 5", res.Text)
	assert.Equal(t, 2, res.Values["recentMessageCount"])

	res, err = NewSummaryProvider(store).Get(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "# Conversation summary\nnew summary", res.Text)

	res, err = NewFactsProvider(store, 10).Get(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "# Known facts\n- likes tea", res.Text)

	res, err = NewKnowledgeProvider(store, 3).Get(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "# Knowledge\n- Tea is brewed from leaves", res.Text)

	empty := testutil.NewMessageBuilder("empty", "nobody").Text("?").Build()

	res, err = NewSummaryProvider(store).Get(ctx, empty)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
}
