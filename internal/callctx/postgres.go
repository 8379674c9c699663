package callctx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store on a shared Postgres database, so sessions
// survive process restarts and are visible to every instance behind the load
// balancer. Merge relies on a jsonb union in a single upsert, which keeps
// per-key last-write-wins semantics without a read-modify-write race across
// instances.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration

	stmtGetAll *sql.Stmt
	stmtMerge  *sql.Stmt
	stmtEnd    *sql.Stmt

	stop     chan struct{}
	stopOnce sync.Once
}

const callSessionsSchema = `
CREATE TABLE IF NOT EXISTS call_sessions (
	call_id         TEXT PRIMARY KEY,
	attributes      JSONB NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_touched_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgresStore opens the database, ensures the schema, and starts the
// background reaper. When reapInterval is zero the reaper is disabled.
func NewPostgresStore(dsn string, ttl, reapInterval time.Duration) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(callSessionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure call_sessions schema: %w", err)
	}

	store, err := newPostgresStoreWithDB(db, ttl)
	if err != nil {
		db.Close()
		return nil, err
	}
	if reapInterval > 0 {
		go store.reapLoop(reapInterval)
	}
	return store, nil
}

// newPostgresStoreWithDB prepares statements on an existing connection; the
// seam used by tests with a mocked database.
func newPostgresStoreWithDB(db *sql.DB, ttl time.Duration) (*PostgresStore, error) {
	s := &PostgresStore{db: db, ttl: ttl, stop: make(chan struct{})}

	var err error
	s.stmtGetAll, err = db.Prepare(`SELECT attributes FROM call_sessions WHERE call_id = $1`)
	if err != nil {
		return nil, fmt.Errorf("prepare get: %w", err)
	}
	s.stmtMerge, err = db.Prepare(`
		INSERT INTO call_sessions (call_id, attributes, created_at, last_touched_at)
		VALUES ($1, $2::jsonb, now(), now())
		ON CONFLICT (call_id)
		DO UPDATE SET attributes = call_sessions.attributes || EXCLUDED.attributes,
		              last_touched_at = now()`)
	if err != nil {
		return nil, fmt.Errorf("prepare merge: %w", err)
	}
	s.stmtEnd, err = db.Prepare(`DELETE FROM call_sessions WHERE call_id = $1`)
	if err != nil {
		return nil, fmt.Errorf("prepare end: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Get(ctx context.Context, callID, key string) (any, bool, error) {
	attrs, err := s.GetAll(ctx, callID)
	if err != nil {
		return nil, false, err
	}
	v, ok := attrs[key]
	return v, ok, nil
}

func (s *PostgresStore) GetAll(ctx context.Context, callID string) (map[string]any, error) {
	var raw []byte
	err := s.stmtGetAll.QueryRowContext(ctx, callID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call session: %w", err)
	}
	attrs := map[string]any{}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("decode call session attributes: %w", err)
	}
	return attrs, nil
}

func (s *PostgresStore) Merge(ctx context.Context, callID string, attrs map[string]any) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode call session attributes: %w", err)
	}
	if _, err := s.stmtMerge.ExecContext(ctx, callID, payload); err != nil {
		return fmt.Errorf("merge call session: %w", err)
	}
	return nil
}

func (s *PostgresStore) End(ctx context.Context, callID string) error {
	if _, err := s.stmtEnd.ExecContext(ctx, callID); err != nil {
		return fmt.Errorf("end call session: %w", err)
	}
	return nil
}

// Reap deletes sessions idle longer than the TTL.
func (s *PostgresStore) Reap(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM call_sessions WHERE last_touched_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(s.ttl.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("reap call sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.db.Close()
}

func (s *PostgresStore) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, _ = s.Reap(ctx)
			cancel()
		}
	}
}
