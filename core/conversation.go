package core

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a named transcript shared by the human participant and the
// agents of a roster. Summary caches the last summarizer output.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one append-only transcript entry. Messages are ordered by
// CreatedAt with ties broken by Seq, a store-assigned insertion counter.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Speaker        string    `json:"speaker"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	Seq            int64     `json:"seq"`
}

// Artifact is a structured file extracted from one agent reply. Artifacts are
// never updated; a later reply with the same filename creates a new one.
type Artifact struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Agent          string    `json:"agent"`
	Filename       string    `json:"filename"`
	Language       string    `json:"language"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Memory is a key/value fact an agent asked to remember across
// conversations. Key is unique per agent; storing it again replaces Value.
type Memory struct {
	Agent      string    `json:"agent"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Importance int       `json:"importance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Less reports whether m sorts before other in transcript order.
func (m Message) Less(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// NewID generates a new unique identifier for conversations, messages and
// artifacts.
func NewID() string { return uuid.NewString() }
