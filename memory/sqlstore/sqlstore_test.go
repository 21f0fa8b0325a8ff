package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cognimesh/core"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "db", "memory.db")})
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSQLite_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	var ids []string

	for i := 0; i < 4; i++ {
		id, err := s.CreateMemory(ctx, core.Memory{
			Type:     core.MemoryMessage,
			RoomID:   "room",
			AgentID:  "agent",
			EntityID: "user",
			Content:  fmt.Sprintf("msg %d", i),
			Metadata: map[string]any{"i": i},
		})
		require.NoError(t, err)

		ids = append(ids, id)
	}

	got, err := s.GetMemories(ctx, core.MemoryFilter{Type: core.MemoryMessage, RoomID: "room"})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "msg 0", got[0].Content)
	assert.Equal(t, "user", got[0].EntityID)
	assert.EqualValues(t, 0, got[0].Metadata["i"])

	recent, err := s.GetMemories(ctx, core.MemoryFilter{RoomID: "room", Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "msg 2", recent[0].Content)
	assert.Equal(t, "msg 3", recent[1].Content)

	require.NoError(t, s.DeleteMemories(ctx, ids[:3]))

	left, err := s.GetMemories(ctx, core.MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, ids[3], left[0].ID)
}

func TestSQLite_DuplicateIDFails(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	_, err := s.CreateMemory(ctx, core.Memory{ID: "fixed", Type: core.MemoryFact, Content: "a"})
	require.NoError(t, err)

	_, err = s.CreateMemory(ctx, core.Memory{ID: "fixed", Type: core.MemoryFact, Content: "b"})
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestSQLite_SearchKnowledge(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	for _, c := range []string{"Paris is the capital of France", "Berlin is the capital of Germany", "Cats sleep a lot"} {
		_, err := s.CreateMemory(ctx, core.Memory{Type: core.MemoryKnowledge, Content: c})
		require.NoError(t, err)
	}

	items, err := s.SearchKnowledge(ctx, "capital France", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Paris is the capital of France", items[0].Content)
	assert.Greater(t, items[0].Score, items[1].Score)
}

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{Driver: "postgres", DSN: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = Open(ctx, Config{Driver: "sqlite"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = Open(ctx, Config{Driver: "mysql", DSN: "not a dsn"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestMySQL_RoundTrip(t *testing.T) {
	dsn := os.Getenv("COGNIMESH_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("COGNIMESH_TEST_MYSQL_DSN not set")
	}

	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: "mysql", DSN: dsn})
	require.NoError(t, err)

	defer s.Close()

	id, err := s.CreateMemory(ctx, core.Memory{Type: core.MemorySummary, RoomID: "mysql-room", Content: "summary"})
	require.NoError(t, err)

	got, err := s.GetMemories(ctx, core.MemoryFilter{Type: core.MemorySummary, RoomID: "mysql-room", Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, got)

	require.NoError(t, s.DeleteMemories(ctx, []string{id}))
}
