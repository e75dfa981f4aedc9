// Package checkpoint persists conversation state per thread in SQLite.
//
// Every Save appends a new checkpoint row; Load returns the latest one. Older
// rows are kept so a thread's progress can be inspected.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id   TEXT    NOT NULL,
	seq         INTEGER NOT NULL,
	state       TEXT    NOT NULL,
	agent_state TEXT    NOT NULL DEFAULT '',
	messages    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT    NOT NULL,
	PRIMARY KEY (thread_id, seq)
)`

// Store is a SQLite-backed checkpoint store.
type Store struct {
	db   *sql.DB
	path string
	log  *logger.Logger
}

// Open opens (creating if needed) the checkpoint database at path.
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating checkpoint directory: %v", models.ErrPersistence, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening checkpoint database: %v", models.ErrPersistence, err)
	}
	// One writer at a time; seq allocation relies on it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating checkpoint schema: %v", models.ErrPersistence, err)
	}
	log.Debug("checkpoint store opened", "path", path)
	return &Store{db: db, path: path, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the latest checkpoint of threadID. The bool is false when the
// thread has never been saved.
func (s *Store) Load(ctx context.Context, threadID string) (*models.Conversation, bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`,
		threadID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: loading thread %s: %v", models.ErrPersistence, threadID, err)
	}

	var conv models.Conversation
	if err := json.Unmarshal([]byte(state), &conv); err != nil {
		return nil, false, fmt.Errorf("%w: decoding thread %s: %v", models.ErrPersistence, threadID, err)
	}
	return &conv, true, nil
}

// Save appends conv as the newest checkpoint of its thread.
func (s *Store) Save(ctx context.Context, conv *models.Conversation) error {
	if conv == nil || conv.ThreadID == "" {
		return fmt.Errorf("%w: checkpoint needs a thread id", models.ErrInvalidInput)
	}
	state, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("%w: encoding thread %s: %v", models.ErrPersistence, conv.ThreadID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", models.ErrPersistence, err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM checkpoints WHERE thread_id = ?`, conv.ThreadID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("%w: reading sequence for %s: %v", models.ErrPersistence, conv.ThreadID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, seq, state, agent_state, messages, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ThreadID, seq+1, string(state), string(conv.State), len(conv.Messages),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: writing checkpoint for %s: %v", models.ErrPersistence, conv.ThreadID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", models.ErrPersistence, err)
	}
	return nil
}

// History lists the checkpoints of threadID, oldest first.
func (s *Store) History(ctx context.Context, threadID string) ([]models.CheckpointInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, agent_state, messages, created_at FROM checkpoints WHERE thread_id = ? ORDER BY seq`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing checkpoints for %s: %v", models.ErrPersistence, threadID, err)
	}
	defer rows.Close()

	var out []models.CheckpointInfo
	for rows.Next() {
		var (
			info    models.CheckpointInfo
			state   string
			created string
		)
		if err := rows.Scan(&info.Seq, &state, &info.Messages, &created); err != nil {
			return nil, fmt.Errorf("%w: scanning checkpoint: %v", models.ErrPersistence, err)
		}
		info.ThreadID = threadID
		info.State = models.AgentState(state)
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing checkpoints for %s: %v", models.ErrPersistence, threadID, err)
	}
	return out, nil
}

// Threads lists every thread id with at least one checkpoint.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT thread_id FROM checkpoints ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing threads: %v", models.ErrPersistence, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scanning thread id: %v", models.ErrPersistence, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
