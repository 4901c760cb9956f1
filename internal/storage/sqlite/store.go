// Package sqlite implements the bot's store on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eucylin/Codex-Line-Bot/internal/namecache"
	"github.com/eucylin/Codex-Line-Bot/internal/storage"
	"github.com/eucylin/Codex-Line-Bot/internal/tally"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS allowed_groups (
	group_id   TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS message_counts (
	group_id   TEXT    NOT NULL,
	user_id    TEXT    NOT NULL,
	year_month TEXT    NOT NULL,
	count      INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (group_id, user_id, year_month)
);
CREATE TABLE IF NOT EXISTS processed_messages (
	message_id TEXT PRIMARY KEY,
	group_id   TEXT    NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS name_cache (
	kind       TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	name       TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (kind, id)
);
`

const incrementSQL = `INSERT INTO message_counts (group_id, user_id, year_month, count, updated_at)
	VALUES (?, ?, ?, 1, ?)
	ON CONFLICT (group_id, user_id, year_month)
	DO UPDATE SET count = count + 1, updated_at = excluded.updated_at`

// Store is a SQLite-backed store. A single connection serializes writers.
type Store struct {
	logger *zap.SugaredLogger
	db     *sql.DB
}

// Open creates the database file and its tables when missing
func Open(logger *zap.SugaredLogger, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Infof("Opened SQLite store at %s", path)

	return &Store{logger: logger, db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Errorf("Closing SQLite store: %v", err)
	}
}

func (s *Store) IsGroupAllowed(ctx context.Context, groupID string) (bool, error) {
	var i int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM allowed_groups WHERE group_id = ?", groupID).Scan(&i)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AllowGroup returns storage.ErrGroupAllowed when the group is already listed
func (s *Store) AllowGroup(ctx context.Context, groupID string) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO allowed_groups (group_id, created_at) VALUES (?, ?) ON CONFLICT (group_id) DO NOTHING",
		groupID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrGroupAllowed
	}
	return nil
}

func (s *Store) IncrementCount(ctx context.Context, k tally.Key) error {
	_, err := s.db.ExecContext(ctx, incrementSQL, k.GroupID, k.UserID, k.YearMonth, time.Now().UnixMilli())
	return err
}

func (s *Store) IncrementCountOnce(ctx context.Context, k tally.Key, messageID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_messages (message_id, group_id, created_at) VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING",
		messageID, k.GroupID, now)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, incrementSQL, k.GroupID, k.UserID, k.YearMonth, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListCounts(ctx context.Context, groupID, yearMonth string) ([]tally.Count, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, count FROM message_counts
		WHERE group_id = ? AND year_month = ?
		ORDER BY count DESC, user_id ASC`, groupID, yearMonth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []tally.Count
	for rows.Next() {
		var c tally.Count
		if err := rows.Scan(&c.UserID, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *Store) CachedName(ctx context.Context, kind namecache.Kind, id string) (namecache.Entry, bool, error) {
	var (
		name      string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT name, updated_at FROM name_cache WHERE kind = ? AND id = ?", string(kind), id,
	).Scan(&name, &updatedAt)
	if err == sql.ErrNoRows {
		return namecache.Entry{}, false, nil
	}
	if err != nil {
		return namecache.Entry{}, false, err
	}
	return namecache.Entry{Name: name, UpdatedAt: time.UnixMilli(updatedAt)}, true, nil
}

func (s *Store) UpsertCachedName(ctx context.Context, kind namecache.Kind, id, name string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO name_cache (kind, id, name, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		string(kind), id, name, updatedAt.UnixMilli())
	return err
}
