// Package storage is the Postgres implementation of the bot's persistent
// store: allow-listed groups, monthly message counts and cached names.
package storage

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/eucylin/Codex-Line-Bot/internal/namecache"
	"github.com/eucylin/Codex-Line-Bot/internal/storage/zapadapter"
	"github.com/eucylin/Codex-Line-Bot/internal/tally"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

var ErrGroupAllowed = errors.New("group is already allowed")

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// NewStore sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func NewStore(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, o := range opts {
		o.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Migrate creates missing tables
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// Ping checks the pool can reach the database
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes all pool connections
func (s *Store) Close() {
	s.db.Close()
}

// IsGroupAllowed reports whether group is on the allow-list
func (s *Store) IsGroupAllowed(ctx context.Context, groupID string) (bool, error) {
	var i int8
	sql := "select 1 from allowed_groups where group_id = $1"
	err := s.db.QueryRow(ctx, sql, groupID).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AllowGroup adds group to the allow-list
func (s *Store) AllowGroup(ctx context.Context, groupID string) error {
	s.logger.Debugf("Allowing group (%s)", groupID)

	sql := "insert into allowed_groups (group_id, created_at) values ($1, $2)"
	_, err := s.db.Exec(ctx, sql, groupID, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrGroupAllowed
		}
		return err
	}
	return nil
}

const incrementSQL = `insert into message_counts (group_id, user_id, year_month, count, updated_at)
		values ($1, $2, $3, 1, $4)
		on conflict (group_id, user_id, year_month)
		do update set count = message_counts.count + 1, updated_at = excluded.updated_at`

// IncrementCount adds one to the (group, user, month) count in a single upsert statement,
// so concurrent increments of the same key never lose updates
func (s *Store) IncrementCount(ctx context.Context, k tally.Key) error {
	_, err := s.db.Exec(ctx, incrementSQL, k.GroupID, k.UserID, k.YearMonth, time.Now())
	return err
}

// IncrementCountOnce records messageID and increments the count in one transaction.
// It returns false without touching the count when messageID was recorded before
func (s *Store) IncrementCountOnce(ctx context.Context, k tally.Key, messageID string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	// error handling can be omitted for rollback according docs
	defer tx.Rollback(context.Background())

	now := time.Now()
	sql := `insert into processed_messages (message_id, group_id, created_at)
			values ($1, $2, $3)
			on conflict (message_id) do nothing`
	tag, err := tx.Exec(ctx, sql, messageID, k.GroupID, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, incrementSQL, k.GroupID, k.UserID, k.YearMonth, now); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ListCounts returns every user count of group in yearMonth, highest first
func (s *Store) ListCounts(ctx context.Context, groupID, yearMonth string) ([]tally.Count, error) {
	sql := `select user_id, count
			  from message_counts
			 where group_id = $1 and year_month = $2
			 order by count desc, user_id asc`

	rows, err := s.db.Query(ctx, sql, groupID, yearMonth)
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

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return counts, nil
}

// CachedName returns the stored name entry, found is false when there is none
func (s *Store) CachedName(ctx context.Context, kind namecache.Kind, id string) (namecache.Entry, bool, error) {
	var (
		name      string
		updatedAt pgtype.Timestamptz
	)
	sql := "select name, updated_at from name_cache where kind = $1 and id = $2"
	err := s.db.QueryRow(ctx, sql, string(kind), id).Scan(&name, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return namecache.Entry{}, false, nil
		}
		return namecache.Entry{}, false, err
	}

	entry := namecache.Entry{Name: name}
	if updatedAt.Status == pgtype.Present {
		entry.UpdatedAt = updatedAt.Time
	}
	return entry, true, nil
}

// UpsertCachedName stores name for (kind, id), overwriting any previous entry
func (s *Store) UpsertCachedName(ctx context.Context, kind namecache.Kind, id, name string, updatedAt time.Time) error {
	sql := `insert into name_cache (kind, id, name, updated_at)
			values ($1, $2, $3, $4)
			on conflict (kind, id)
			do update set name = excluded.name, updated_at = excluded.updated_at`
	_, err := s.db.Exec(ctx, sql, string(kind), id, name, updatedAt)
	return err
}
