package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tobyrush/chatbridge/internal/message"
	"github.com/tobyrush/chatbridge/internal/metrics"
)

// SQLiteStore is a durable ChatStore enforcing the same dual-resource bounds
// as MemoryStore. Each Add runs in one transaction that appends, trims the
// thread front, and evicts the least-recently-active conversation when the
// conversation cap is exceeded. The message rowid doubles as the activity
// sequence: it is monotonic, so last-activity order never ties.
type SQLiteStore struct {
	db         *sql.DB
	maxThreads int
	maxPerThr  int
}

// OpenSQLiteStore opens (or creates) the database at path, ensuring the
// parent directory exists, and applies the schema.
func OpenSQLiteStore(path string, maxThreads, maxMessagesPerThread int) (*SQLiteStore, error) {
	if err := validateCaps(maxThreads, maxMessagesPerThread); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	s := &SQLiteStore{db: db, maxThreads: maxThreads, maxPerThr: maxMessagesPerThread}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			key TEXT PRIMARY KEY,
			created_seq INTEGER NOT NULL,
			last_seq INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_key TEXT NOT NULL,
			data TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_key, id);
	`)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add inserts m within one transaction, evicting and trimming as needed, and
// returns the post-insertion snapshot.
func (s *SQLiteStore) Add(ctx context.Context, m message.Message) (message.ThreadState, error) {
	key := m.ThreadKey()
	data, err := json.Marshal(m)
	if err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to encode message: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM threads WHERE key = ?`, key.String()).Scan(&exists); err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to look up thread: %w", err)
	}

	if exists == 0 {
		var total int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&total); err != nil {
			return message.ThreadState{}, fmt.Errorf("failed to count threads: %w", err)
		}
		if total >= s.maxThreads {
			if err := s.evictStalest(ctx, tx); err != nil {
				return message.ThreadState{}, err
			}
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (thread_key, data) VALUES (?, ?)`, key.String(), string(data))
	if err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to insert message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to read insert id: %w", err)
	}

	if exists == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO threads (key, created_seq, last_seq) VALUES (?, ?, ?)`,
			key.String(), seq, seq)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE threads SET last_seq = ? WHERE key = ?`, seq, key.String())
	}
	if err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to update thread: %w", err)
	}

	// Trim the thread front to the per-thread cap.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE thread_key = ? AND id NOT IN (
			SELECT id FROM messages WHERE thread_key = ? ORDER BY id DESC LIMIT ?
		)`, key.String(), key.String(), s.maxPerThr); err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to trim thread: %w", err)
	}

	state, err := s.snapshot(ctx, tx, key)
	if err != nil {
		return message.ThreadState{}, err
	}
	if err := tx.Commit(); err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to commit: %w", err)
	}
	return state, nil
}

// Get returns a snapshot of the conversation, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key message.ThreadKey) (message.ThreadState, error) {
	return s.snapshot(ctx, s.db, key)
}

// Size returns the number of retained conversations.
func (s *SQLiteStore) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count threads: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) evictStalest(ctx context.Context, tx *sql.Tx) error {
	var victim string
	err := tx.QueryRowContext(ctx,
		`SELECT key FROM threads ORDER BY last_seq ASC, created_seq ASC LIMIT 1`).Scan(&victim)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pick eviction victim: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_key = ?`, victim); err != nil {
		return fmt.Errorf("failed to drop evicted messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE key = ?`, victim); err != nil {
		return fmt.Errorf("failed to drop evicted thread: %w", err)
	}
	metrics.ThreadEvictionsTotal.WithLabelValues("sqlite").Inc()
	return nil
}

// querier covers both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) snapshot(ctx context.Context, q querier, key message.ThreadKey) (message.ThreadState, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT data FROM messages WHERE thread_key = ? ORDER BY id ASC`, key.String())
	if err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to load thread: %w", err)
	}
	defer rows.Close()

	var msgs []message.Message
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return message.ThreadState{}, fmt.Errorf("failed to scan message: %w", err)
		}
		var m message.Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return message.ThreadState{}, fmt.Errorf("failed to decode stored message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return message.ThreadState{}, fmt.Errorf("failed to iterate thread: %w", err)
	}
	if len(msgs) == 0 {
		return message.ThreadState{}, ErrNotFound
	}
	return message.NewThreadState(key, msgs), nil
}
