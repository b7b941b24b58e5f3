// Package sqlite implements core.Store on a SQLite database file using the
// pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/logging"
)

// Store implements core.Store using SQLite. Timestamps are stored as unix
// nanoseconds; the messages rowid doubles as the insertion sequence.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger logging.Logger
}

var _ core.Store = (*Store)(nil)

// Options configures the store.
type Options struct {
	Now    func() time.Time
	Logger logging.Logger
}

// New opens (or creates) the database at path and runs migrations.
func New(path string, optFns ...func(o *Options)) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}

	// One connection serializes writers and keeps :memory: databases intact.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: foreign keys: %w", err)
	}

	s := NewFromDB(db, optFns...)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// NewFromDB wraps an already open database. Migrate is not run.
func NewFromDB(db *sql.DB, optFns ...func(o *Options)) *Store {
	opts := Options{Now: time.Now, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{db: db, now: opts.Now, logger: logging.OrNoOp(opts.Logger)}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks if the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			summary    TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			speaker         TEXT NOT NULL,
			body            TEXT NOT NULL,
			created_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS artifacts (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			message_id      TEXT NOT NULL DEFAULT '',
			agent           TEXT NOT NULL,
			filename        TEXT NOT NULL,
			language        TEXT NOT NULL DEFAULT '',
			content         TEXT NOT NULL,
			created_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS memories (
			agent      TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 5,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (agent, key)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, seq);
		CREATE INDEX IF NOT EXISTS idx_artifacts_conversation ON artifacts(conversation_id, seq);
		CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("sqlite store: migrate: %w", err)
	}

	return nil
}

func notFound(id string) error {
	return fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// CreateConversation implements core.ConversationStore.
func (s *Store) CreateConversation(ctx context.Context, name string) (*core.Conversation, error) {
	now := s.now().UTC()
	c := core.Conversation{ID: core.NewID(), Name: strings.TrimSpace(name), CreatedAt: now, UpdatedAt: now}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, name, summary, created_at, updated_at) VALUES (?, ?, '', ?, ?)`,
		c.ID, c.Name, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite store: create conversation: %w", err)
	}

	return &c, nil
}

// GetConversation implements core.ConversationStore.
func (s *Store) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, summary, created_at, updated_at FROM conversations WHERE id = ?`, id)

	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("sqlite store: get conversation: %w", err)
	}

	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*core.Conversation, error) {
	var (
		c                core.Conversation
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Summary, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = fromNanos(created)
	c.UpdatedAt = fromNanos(updated)

	return &c, nil
}

// ListConversations implements core.ConversationStore.
func (s *Store) ListConversations(ctx context.Context) ([]core.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, summary, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list conversations: %w", err)
	}
	defer rows.Close()

	out := []core.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: list scan: %w", err)
		}
		out = append(out, *c)
	}

	return out, rows.Err()
}

// DeleteConversation removes the conversation with its messages and
// artifacts.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite store: delete artifacts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite store: delete messages: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite store: delete conversation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(id)
		}

		return nil
	})
}

// AppendMessage implements core.ConversationStore.
func (s *Store) AppendMessage(ctx context.Context, conversationID, speaker, body string) (*core.Message, error) {
	if strings.TrimSpace(speaker) == "" {
		return nil, fmt.Errorf("%w: empty speaker", core.ErrInvalidMessage)
	}

	msg := core.Message{
		ID:             core.NewID(),
		ConversationID: conversationID,
		Speaker:        speaker,
		Body:           body,
		CreatedAt:      s.now().UTC(),
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := conversationExists(ctx, tx, conversationID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, speaker, body, created_at) VALUES (?, ?, ?, ?, ?)`,
			msg.ID, conversationID, speaker, body, msg.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("sqlite store: append message: %w", err)
		}

		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite store: append message: %w", err)
		}
		msg.Seq = seq

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

func conversationExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("sqlite store: lookup conversation: %w", err)
	}
	return nil
}

const messageColumns = `seq, id, conversation_id, speaker, body, created_at`

func scanMessages(rows *sql.Rows) ([]core.Message, error) {
	defer rows.Close()

	out := []core.Message{}
	for rows.Next() {
		var (
			m       core.Message
			created int64
		)
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.Speaker, &m.Body, &created); err != nil {
			return nil, fmt.Errorf("sqlite store: scan message: %w", err)
		}
		m.CreatedAt = fromNanos(created)
		out = append(out, m)
	}

	return out, rows.Err()
}

// RecentMessages implements core.ConversationStore.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: recent messages: %w", err)
	}

	return scanMessages(rows)
}

// Messages implements core.ConversationStore.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]core.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY created_at, seq`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: messages: %w", err)
	}

	return scanMessages(rows)
}

// LastSpeaker implements core.ConversationStore.
func (s *Store) LastSpeaker(ctx context.Context, conversationID string) (string, bool, error) {
	recent, err := s.RecentMessages(ctx, conversationID, 1)
	if err != nil {
		return "", false, err
	}
	if len(recent) == 0 {
		return "", false, nil
	}

	return recent[0].Speaker, true, nil
}

// UpdateSummary implements core.ConversationStore.
func (s *Store) UpdateSummary(ctx context.Context, conversationID, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = ?, updated_at = MAX(updated_at, ?) WHERE id = ?`,
		summary, s.now().UnixNano(), conversationID)
	if err != nil {
		return fmt.Errorf("sqlite store: update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(conversationID)
	}

	return nil
}

// AppendArtifact implements core.ArtifactStore.
func (s *Store) AppendArtifact(ctx context.Context, a core.Artifact) (*core.Artifact, error) {
	if a.Filename == "" {
		return nil, fmt.Errorf("%w: artifact without filename", core.ErrInvalidMessage)
	}
	if a.ID == "" {
		a.ID = core.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := conversationExists(ctx, tx, a.ConversationID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (id, conversation_id, message_id, agent, filename, language, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ConversationID, a.MessageID, a.Agent, a.Filename, a.Language, a.Content, a.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("sqlite store: append artifact: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// ListArtifacts implements core.ArtifactStore.
func (s *Store) ListArtifacts(ctx context.Context, conversationID string) ([]core.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, message_id, agent, filename, language, content, created_at
		FROM artifacts WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list artifacts: %w", err)
	}
	defer rows.Close()

	out := []core.Artifact{}
	for rows.Next() {
		var (
			a       core.Artifact
			created int64
		)
		if err := rows.Scan(&a.ID, &a.ConversationID, &a.MessageID, &a.Agent, &a.Filename, &a.Language, &a.Content, &created); err != nil {
			return nil, fmt.Errorf("sqlite store: scan artifact: %w", err)
		}
		a.CreatedAt = fromNanos(created)
		out = append(out, a)
	}

	return out, rows.Err()
}

// Remember implements core.MemoryStore.
func (s *Store) Remember(ctx context.Context, m core.Memory) error {
	if m.Agent == "" || m.Key == "" {
		return fmt.Errorf("memory requires agent and key: %w", core.ErrInvalidMessage)
	}
	if m.Importance == 0 {
		m.Importance = 5
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (agent, key, value, importance, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent, key) DO UPDATE SET
			value=excluded.value, importance=excluded.importance, updated_at=excluded.updated_at`,
		m.Agent, m.Key, m.Value, m.Importance, m.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite store: remember: %w", err)
	}

	return nil
}

// Recall implements core.MemoryStore.
func (s *Store) Recall(ctx context.Context, agent string, limit int) ([]core.Memory, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, key, value, importance, updated_at FROM memories
		WHERE agent = ? ORDER BY importance DESC, updated_at DESC, key LIMIT ?`, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: recall: %w", err)
	}
	defer rows.Close()

	out := []core.Memory{}
	for rows.Next() {
		var (
			m       core.Memory
			updated int64
		)
		if err := rows.Scan(&m.Agent, &m.Key, &m.Value, &m.Importance, &updated); err != nil {
			return nil, fmt.Errorf("sqlite store: scan memory: %w", err)
		}
		m.UpdatedAt = fromNanos(updated)
		out = append(out, m)
	}

	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("sqlite rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit: %w", err)
	}

	return nil
}
