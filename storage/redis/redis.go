// Package redis implements core.Store on Redis. Writes that must observe
// the current state of a conversation run under WATCH/MULTI so concurrent
// writers to one conversation never interleave inconsistently.
//
// Key layout (prefix defaults to "roundtable"):
//
//	<p>:convs            ZSET  conversation id scored by updated_at
//	<p>:conv:<id>        HASH  conversation fields
//	<p>:msgs:<id>        LIST  JSON messages, oldest first
//	<p>:arts:<id>        LIST  JSON artifacts, oldest first
//	<p>:mem:<agent>      HASH  memory key -> JSON memory
//	<p>:seq              STRING global message sequence
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/logging"
	"github.com/lalomorales22/roundtable/memory"
	"github.com/redis/go-redis/v9"
)

const maxTxAttempts = 5

// Options configures the store.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Now      func() time.Time
	Logger   logging.Logger
}

// Store implements core.Store on Redis.
type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	logger logging.Logger

	// locks serializes writers of this process per conversation; WATCH
	// covers writers in other processes.
	locks sync.Map

	// beforeExec runs inside WATCH right before MULTI; tests use it to force
	// conflicts.
	beforeExec func(ctx context.Context, conversationID string)
}

var _ core.Store = (*Store)(nil)

func defaultOptions() Options {
	return Options{Addr: "localhost:6379", Prefix: "roundtable", Now: time.Now, Logger: logging.NoOpLogger{}}
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, optFns ...func(o *Options)) (*Store, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis store: connect: %w", err)
	}

	return newStore(client, opts), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, optFns ...func(o *Options)) *Store {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return newStore(client, opts)
}

func newStore(client *redis.Client, opts Options) *Store {
	return &Store{
		client: client,
		prefix: strings.TrimSuffix(opts.Prefix, ":"),
		now:    opts.Now,
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Close closes the client.
func (s *Store) Close() error { return s.client.Close() }

// Ping checks if the store is healthy.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) convsKey() string           { return s.prefix + ":convs" }
func (s *Store) convKey(id string) string   { return s.prefix + ":conv:" + id }
func (s *Store) msgsKey(id string) string   { return s.prefix + ":msgs:" + id }
func (s *Store) artsKey(id string) string   { return s.prefix + ":arts:" + id }
func (s *Store) memKey(agent string) string { return s.prefix + ":mem:" + agent }
func (s *Store) seqKey() string             { return s.prefix + ":seq" }

func notFound(id string) error {
	return fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
}

// watch runs fn under WATCH on keys, retrying when another client touched
// them. Persistent contention surfaces as core.ErrWriteConflict.
func (s *Store) watch(ctx context.Context, conversationID string, fn func(tx *redis.Tx) error, keys ...string) error {
	mu, _ := s.locks.LoadOrStore(conversationID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			if s.beforeExec != nil {
				s.beforeExec(ctx, conversationID)
			}
			return fn(tx)
		}, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("redis transaction conflict, retrying", "conversation_id", conversationID, "attempt", attempt+1)
			continue
		}
		if errors.Is(err, core.ErrNotFound) {
			s.locks.Delete(conversationID)
		}
		return err
	}

	return fmt.Errorf("redis store: conversation %s: %w", conversationID, core.ErrWriteConflict)
}

func requireConversation(ctx context.Context, tx *redis.Tx, key, id string) error {
	n, err := tx.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis store: lookup conversation: %w", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// CreateConversation implements core.ConversationStore.
func (s *Store) CreateConversation(ctx context.Context, name string) (*core.Conversation, error) {
	now := s.now().UTC()
	c := core.Conversation{ID: core.NewID(), Name: strings.TrimSpace(name), CreatedAt: now, UpdatedAt: now}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.convKey(c.ID),
			"id", c.ID,
			"name", c.Name,
			"summary", "",
			"created_at", now.UnixNano(),
			"updated_at", now.UnixNano(),
		)
		pipe.ZAdd(ctx, s.convsKey(), redis.Z{Score: float64(now.UnixNano()), Member: c.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis store: create conversation: %w", err)
	}

	return &c, nil
}

func parseConversation(m map[string]string) (*core.Conversation, error) {
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis store: bad created_at: %w", err)
	}
	updated, err := strconv.ParseInt(m["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis store: bad updated_at: %w", err)
	}

	return &core.Conversation{
		ID:        m["id"],
		Name:      m["name"],
		Summary:   m["summary"],
		CreatedAt: time.Unix(0, created).UTC(),
		UpdatedAt: time.Unix(0, updated).UTC(),
	}, nil
}

// GetConversation implements core.ConversationStore.
func (s *Store) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	m, err := s.client.HGetAll(ctx, s.convKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: get conversation: %w", err)
	}
	if len(m) == 0 {
		return nil, notFound(id)
	}

	return parseConversation(m)
}

// ListConversations implements core.ConversationStore.
func (s *Store) ListConversations(ctx context.Context) ([]core.Conversation, error) {
	ids, err := s.client.ZRevRange(ctx, s.convsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: list conversations: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.convKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis store: list conversations: %w", err)
	}

	out := make([]core.Conversation, 0, len(ids))
	for _, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		c, err := parseConversation(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}

	return out, nil
}

// DeleteConversation removes the conversation with its messages and
// artifacts.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	key := s.convKey(id)

	return s.watch(ctx, id, func(tx *redis.Tx) error {
		if err := requireConversation(ctx, tx, key, id); err != nil {
			return err
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, s.msgsKey(id), s.artsKey(id))
			pipe.ZRem(ctx, s.convsKey(), id)
			return nil
		})
		if err == nil {
			s.locks.Delete(id)
		}
		return err
	}, key)
}

// AppendMessage implements core.ConversationStore.
func (s *Store) AppendMessage(ctx context.Context, conversationID, speaker, body string) (*core.Message, error) {
	if strings.TrimSpace(speaker) == "" {
		return nil, fmt.Errorf("%w: empty speaker", core.ErrInvalidMessage)
	}

	key := s.convKey(conversationID)
	msgs := s.msgsKey(conversationID)

	var msg core.Message
	err := s.watch(ctx, conversationID, func(tx *redis.Tx) error {
		if err := requireConversation(ctx, tx, key, conversationID); err != nil {
			return err
		}

		seq, err := tx.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("redis store: next sequence: %w", err)
		}

		msg = core.Message{
			ID:             core.NewID(),
			ConversationID: conversationID,
			Speaker:        speaker,
			Body:           body,
			CreatedAt:      s.now().UTC(),
			Seq:            seq,
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("redis store: encode message: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, msgs, data)
			return nil
		})
		return err
	}, key, msgs)
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

func decodeMessages(raw []string) ([]core.Message, error) {
	out := make([]core.Message, 0, len(raw))
	for _, r := range raw {
		var m core.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("redis store: decode message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// RecentMessages implements core.ConversationStore.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	raw, err := s.client.LRange(ctx, s.msgsKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: recent messages: %w", err)
	}

	chrono, err := decodeMessages(raw)
	if err != nil {
		return nil, err
	}

	out := make([]core.Message, len(chrono))
	for i, m := range chrono {
		out[len(chrono)-1-i] = m
	}

	return out, nil
}

// Messages implements core.ConversationStore.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]core.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, s.msgsKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: messages: %w", err)
	}

	return decodeMessages(raw)
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
	key := s.convKey(conversationID)

	return s.watch(ctx, conversationID, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "updated_at").Result()
		if errors.Is(err, redis.Nil) {
			return notFound(conversationID)
		}
		if err != nil {
			return fmt.Errorf("redis store: update summary: %w", err)
		}

		updated, _ := strconv.ParseInt(current, 10, 64)
		if now := s.now().UnixNano(); now > updated {
			updated = now
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "summary", summary, "updated_at", updated)
			pipe.ZAdd(ctx, s.convsKey(), redis.Z{Score: float64(updated), Member: conversationID})
			return nil
		})
		return err
	}, key)
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

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("redis store: encode artifact: %w", err)
	}

	key := s.convKey(a.ConversationID)
	err = s.watch(ctx, a.ConversationID, func(tx *redis.Tx) error {
		if err := requireConversation(ctx, tx, key, a.ConversationID); err != nil {
			return err
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, s.artsKey(a.ConversationID), data)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// ListArtifacts implements core.ArtifactStore.
func (s *Store) ListArtifacts(ctx context.Context, conversationID string) ([]core.Artifact, error) {
	raw, err := s.client.LRange(ctx, s.artsKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: list artifacts: %w", err)
	}

	out := make([]core.Artifact, 0, len(raw))
	for _, r := range raw {
		var a core.Artifact
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			return nil, fmt.Errorf("redis store: decode artifact: %w", err)
		}
		out = append(out, a)
	}

	return out, nil
}

// Remember implements core.MemoryStore.
func (s *Store) Remember(ctx context.Context, m core.Memory) error {
	if m.Agent == "" || m.Key == "" {
		return fmt.Errorf("memory requires agent and key: %w", core.ErrInvalidMessage)
	}
	if m.Importance == 0 {
		m.Importance = memory.DefaultImportance
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = s.now()
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis store: encode memory: %w", err)
	}

	if err := s.client.HSet(ctx, s.memKey(m.Agent), m.Key, data).Err(); err != nil {
		return fmt.Errorf("redis store: remember: %w", err)
	}

	return nil
}

// Recall implements core.MemoryStore.
func (s *Store) Recall(ctx context.Context, agent string, limit int) ([]core.Memory, error) {
	if limit <= 0 {
		limit = memory.DefaultRecallLimit
	}

	raw, err := s.client.HVals(ctx, s.memKey(agent)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: recall: %w", err)
	}

	out := make([]core.Memory, 0, len(raw))
	for _, r := range raw {
		var m core.Memory
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("redis store: decode memory: %w", err)
		}
		out = append(out, m)
	}

	memory.SortMemories(out)
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
