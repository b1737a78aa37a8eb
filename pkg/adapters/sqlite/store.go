package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/mindgraph/pkg/domain"

	_ "modernc.org/sqlite"
)

// Store implements ports.CheckpointStore on a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates its schema.
func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing database path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// Single-process local DB; one connection serializes writers and keeps pragmas.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}

	const targetVersion = 1
	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS checkpoints (
  thread_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  state TEXT NOT NULL,
  next TEXT NOT NULL,
  writes TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL,
  PRIMARY KEY (thread_id, seq)
);
`); err != nil {
		return fmt.Errorf("create checkpoints: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

// Save appends a checkpoint. The primary key keeps history append-only.
func (s *Store) Save(ctx context.Context, cp *domain.Checkpoint) error {
	next, err := json.Marshal(cp.Next)
	if err != nil {
		return fmt.Errorf("failed to marshal next: %w", err)
	}
	writes, err := json.Marshal(cp.Writes)
	if err != nil {
		return fmt.Errorf("failed to marshal writes: %w", err)
	}
	state := string(cp.State)
	if state == "" {
		state = "null"
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO checkpoints (thread_id, seq, state, next, writes, created_at_unix_ms)
VALUES (?, ?, ?, ?, ?, ?)
`, cp.ThreadID, cp.Seq, state, string(next), string(writes), cp.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrCheckpointExists
		}
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint failed") {
		return true
	}
	return strings.Contains(msg, "constraint failed") && (strings.Contains(msg, "unique") || strings.Contains(msg, "primary key"))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner, threadID string) (*domain.Checkpoint, error) {
	var (
		cp            = domain.Checkpoint{ThreadID: threadID}
		state         string
		next, writes  string
		createdUnixMs int64
	)
	if err := row.Scan(&cp.Seq, &state, &next, &writes, &createdUnixMs); err != nil {
		return nil, err
	}
	cp.State = json.RawMessage(state)
	if err := json.Unmarshal([]byte(next), &cp.Next); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next: %w", err)
	}
	if err := json.Unmarshal([]byte(writes), &cp.Writes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal writes: %w", err)
	}
	cp.CreatedAt = time.UnixMilli(createdUnixMs).UTC()
	return &cp, nil
}

// Load retrieves the latest checkpoint of a thread.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT seq, state, next, writes, created_at_unix_ms
FROM checkpoints
WHERE thread_id = ?
ORDER BY seq DESC
LIMIT 1
`, threadID)
	cp, err := scanCheckpoint(row, threadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// History lists the checkpoints of a thread in order.
func (s *Store) History(ctx context.Context, threadID string) ([]domain.CheckpointMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, state, next, writes, created_at_unix_ms
FROM checkpoints
WHERE thread_id = ?
ORDER BY seq ASC
`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var metas []domain.CheckpointMeta
	for rows.Next() {
		cp, err := scanCheckpoint(rows, threadID)
		if err != nil {
			return nil, err
		}
		metas = append(metas, cp.Meta())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	return metas, nil
}

// Delete removes every checkpoint of a thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// List returns the known threads.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT thread_id FROM checkpoints ORDER BY thread_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	threads := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		threads = append(threads, id)
	}
	return threads, rows.Err()
}
