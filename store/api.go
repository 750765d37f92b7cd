package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a row lookup has no creation-on-demand path.
var ErrNotFound = errors.New("store: not found")

// User is a chat identity, created lazily on first contact.
type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Initials   string    `json:"initials"`
	Color      string    `json:"color"`
	CreateTime time.Time `json:"created_at"`
}

// Contact is one entry of a user's contact list: the target username joined
// with its profile decoration.
type Contact struct {
	Username string `json:"contact_username"`
	Initials string `json:"initials"`
	Color    string `json:"color"`
}

// NewMessage carries the client-supplied fields of a message to be stored.
type NewMessage struct {
	ConversationID string
	Sender         string
	Text           string
	Image          string
	Timestamp      int64
}

// Message is a stored, immutable message row.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text,omitempty"`
	Image          string    `json:"image,omitempty"`
	Timestamp      int64     `json:"timestamp"`
	CreateTime     time.Time `json:"created_at"`
}

type IChatStore interface {
	// GetOrCreateUser looks up a user by exact username, creating the row
	// with derived initials/color on first reference. Racing creations of
	// the same username resolve to the single stored row.
	GetOrCreateUser(ctx context.Context, username string) (*User, error)

	// ListContacts returns the contact list of `username`, joined against
	// the users table. Edges whose target cannot be resolved are omitted.
	ListContacts(ctx context.Context, username string) ([]*Contact, error)

	// AddContact inserts the owner->contact edge, creating the contact user
	// on demand, and best-effort inserts the reverse edge. Idempotent.
	// Returns ErrNotFound when the owner does not exist.
	AddContact(ctx context.Context, owner, contact string) (*Contact, error)

	// SaveMessage inserts a message row and returns it with the assigned id
	// and server create time.
	SaveMessage(ctx context.Context, m *NewMessage) (*Message, error)

	// GetMessages returns all messages of a conversation ordered by
	// (timestamp ASC, id ASC). Empty slice when there are none.
	GetMessages(ctx context.Context, conversationID string) ([]*Message, error)

	IsDupKeyError(err error) bool
}
