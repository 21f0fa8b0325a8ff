package sqlstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// dialect captures the per-driver differences: schema and connection setup.
type dialect struct {
	driver string
	schema []string
	setup  func(db *sql.DB, cfg Config)
	check  func(dsn string) error
}

var dialects = map[string]dialect{
	"sqlite": {
		driver: "sqlite",
		schema: []string{
			`PRAGMA journal_mode=WAL;`,
			`PRAGMA synchronous=NORMAL;`,
			`PRAGMA busy_timeout=5000;`,
			`CREATE TABLE IF NOT EXISTS memories (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				type TEXT NOT NULL,
				room_id TEXT NOT NULL DEFAULT '',
				agent_id TEXT NOT NULL DEFAULT '',
				entity_id TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				metadata_json TEXT NOT NULL DEFAULT '{}',
				created_at_ms INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_memories_room_type ON memories(room_id, type, seq);`,
		},
		setup: func(db *sql.DB, _ Config) {
			// One shared connection avoids writer lock contention.
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		},
		check: func(dsn string) error {
			if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
				return nil
			}

			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return fmt.Errorf("create sqlite dir: %w", err)
			}

			return nil
		},
	},
	"mysql": {
		driver: "mysql",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS memories (
				seq BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				id VARCHAR(64) NOT NULL UNIQUE,
				type VARCHAR(32) NOT NULL,
				room_id VARCHAR(191) NOT NULL DEFAULT '',
				agent_id VARCHAR(191) NOT NULL DEFAULT '',
				entity_id VARCHAR(191) NOT NULL DEFAULT '',
				content MEDIUMTEXT NOT NULL,
				metadata_json TEXT NOT NULL,
				created_at_ms BIGINT NOT NULL,
				INDEX idx_memories_room_type (room_id, type, seq)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
		setup: func(db *sql.DB, cfg Config) {
			if cfg.MaxOpenConns > 0 {
				db.SetMaxOpenConns(cfg.MaxOpenConns)
			} else {
				db.SetMaxOpenConns(20)
			}

			if cfg.MaxIdleConns > 0 {
				db.SetMaxIdleConns(cfg.MaxIdleConns)
			} else {
				db.SetMaxIdleConns(10)
			}

			if cfg.ConnMaxLifetime > 0 {
				db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
			} else {
				db.SetConnMaxLifetime(30 * time.Minute)
			}
		},
		check: func(dsn string) error {
			if _, err := mysql.ParseDSN(dsn); err != nil {
				return fmt.Errorf("invalid mysql dsn: %w", err)
			}

			return nil
		},
	},
}
