// Package sqlstore implements core.MemoryStore on database/sql with SQLite
// (modernc.org/sqlite, pure Go) and MySQL (go-sql-driver/mysql) dialects.
// Rows are ordered by an auto-increment sequence, so "oldest first" is
// insertion order exactly as in the in-memory store.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/cognimesh/core"
	"github.com/hupe1980/cognimesh/memory"
)

// knowledgeCandidates caps the rows pulled for keyword ranking.
const knowledgeCandidates = 500

// Config selects the driver and connection pool.
type Config struct {
	Driver          string // sqlite or mysql
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a SQL backed core.MemoryStore.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects, applies the schema and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, core.Errorf(core.CodeInvalidInput, "unsupported sql driver %q", cfg.Driver)
	}

	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, core.NewError(core.CodeInvalidInput, "sql dsn must not be empty")
	}

	if err := d.check(cfg.DSN); err != nil {
		return nil, core.Wrap(core.CodeInvalidInput, cfg.Driver, err)
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, core.Wrap(core.CodeStorage, cfg.Driver, fmt.Errorf("open: %w", err))
	}

	d.setup(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, core.Wrap(core.CodeStorage, cfg.Driver, fmt.Errorf("ping: %w", err))
	}

	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, core.Wrap(core.CodeStorage, cfg.Driver, fmt.Errorf("apply schema: %w", err))
		}
	}

	return &Store{db: db, driver: cfg.Driver}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// CreateMemory implements core.MemoryStore.
func (s *Store) CreateMemory(ctx context.Context, m core.Memory) (string, error) {
	if m.Type == "" {
		return "", core.NewError(core.CodeInvalidInput, "memory type is required")
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	md := m.Metadata
	if md == nil {
		md = map[string]any{}
	}

	mdJSON, err := json.Marshal(md)
	if err != nil {
		return "", core.Wrap(core.CodeInvalidInput, "metadata", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, type, room_id, agent_id, entity_id, content, metadata_json, created_at_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Type), m.RoomID, m.AgentID, m.EntityID, m.Content, string(mdJSON), m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return "", s.wrap(fmt.Errorf("insert memory: %w", err))
	}

	return m.ID, nil
}

// GetMemories implements core.MemoryStore.
func (s *Store) GetMemories(ctx context.Context, filter core.MemoryFilter) ([]core.Memory, error) {
	var (
		where []string
		args  []any
	)

	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}

	if filter.RoomID != "" {
		where = append(where, "room_id = ?")
		args = append(args, filter.RoomID)
	}

	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}

	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	q := `SELECT id, type, room_id, agent_id, entity_id, content, metadata_json, created_at_ms FROM memories`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	if filter.Limit > 0 {
		q += " ORDER BY seq DESC LIMIT ?"
		args = append(args, filter.Limit)
	} else {
		q += " ORDER BY seq ASC"
	}

	out, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	if filter.Limit > 0 {
		slices.Reverse(out)
	}

	return out, nil
}

// DeleteMemories implements core.MemoryStore.
func (s *Store) DeleteMemories(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return s.wrap(fmt.Errorf("delete memories: %w", err))
	}

	return nil
}

// SearchKnowledge implements core.MemoryStore. Candidate rows are narrowed
// with LIKE per query term and ranked with memory.RankKnowledge.
func (s *Store) SearchKnowledge(ctx context.Context, query string, limit int) ([]core.KnowledgeItem, error) {
	terms := memory.Terms(query)

	q := `SELECT id, type, room_id, agent_id, entity_id, content, metadata_json, created_at_ms FROM memories WHERE type = ?`
	args := []any{string(core.MemoryKnowledge)}

	if len(terms) > 0 {
		likes := make([]string, len(terms))
		for i, t := range terms {
			likes[i] = "LOWER(content) LIKE ?"
			args = append(args, "%"+t+"%")
		}

		q += " AND (" + strings.Join(likes, " OR ") + ")"
	}

	q += " ORDER BY seq ASC LIMIT ?"
	args = append(args, knowledgeCandidates)

	candidates, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	return memory.RankKnowledge(candidates, query, limit), nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]core.Memory, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("query memories: %w", err))
	}
	defer rows.Close()

	out := make([]core.Memory, 0)

	for rows.Next() {
		var (
			m         core.Memory
			typ, mdJS string
			createdMS int64
		)

		if err := rows.Scan(&m.ID, &typ, &m.RoomID, &m.AgentID, &m.EntityID, &m.Content, &mdJS, &createdMS); err != nil {
			return nil, s.wrap(fmt.Errorf("scan memory: %w", err))
		}

		m.Type = core.MemoryType(typ)
		m.CreatedAt = time.UnixMilli(createdMS)

		if mdJS != "" && mdJS != "{}" {
			if err := json.Unmarshal([]byte(mdJS), &m.Metadata); err != nil {
				return nil, s.wrap(fmt.Errorf("decode metadata of %s: %w", m.ID, err))
			}
		}

		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, s.wrap(err)
	}

	return out, nil
}

func (s *Store) wrap(err error) error {
	return core.Wrap(core.CodeStorage, s.driver, err)
}

var _ core.MemoryStore = (*Store)(nil)
