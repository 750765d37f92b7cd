package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dsn = "root:@tcp(127.0.0.1:3306)/minichat?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci"
)

// newTestStore connects to the local dev database, skipping when there is
// none. Tables come from dev/schema.sql.
func newTestStore(t *testing.T) *chatStore {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("mysql not reachable: %v", err)
	}

	for _, table := range []string{"messages", "contacts", "users"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			panic(err)
		}
	}

	return NewChatStore(db)
}

func TestGetOrCreateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.GetOrCreateUser(ctx, "bob carter")
	require.NoError(t, err)
	assert.Equal(t, "bob carter", u.Username)
	assert.Equal(t, "BC", u.Initials)
	assert.Equal(t, AvatarColor("bob carter"), u.Color)

	// Second call returns the stored row, not a new one.
	u2, err := s.GetOrCreateUser(ctx, "bob carter")
	require.NoError(t, err)
	assert.Equal(t, u.ID, u2.ID)
}

func TestGetOrCreateUserRace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 20
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		go func() {
			u, err := s.GetOrCreateUser(ctx, "racer")
			if err != nil {
				ids <- -1
				return
			}
			ids <- u.ID
		}()
	}

	first := <-ids
	require.NotEqual(t, int64(-1), first)
	for i := 1; i < n; i++ {
		assert.Equal(t, first, <-ids)
	}
}

func TestAddAndListContacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreateUser(ctx, "alice")
	require.NoError(t, err)

	// Contact user does not exist yet: created on demand.
	c, err := s.AddContact(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", c.Username)
	assert.Equal(t, "B", c.Initials)

	// Idempotent.
	_, err = s.AddContact(ctx, "alice", "bob")
	require.NoError(t, err)

	contacts, err := s.ListContacts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "bob", contacts[0].Username)

	// Reverse edge is best-effort but present on the happy path.
	reverse, err := s.ListContacts(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, reverse, 1)
	assert.Equal(t, "alice", reverse[0].Username)

	_, err = s.AddContact(ctx, "nobody", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	convID, err := ConversationID("alice", "bob")
	require.NoError(t, err)

	// Out-of-order timestamps plus a tie: history must come back ordered by
	// (timestamp, id).
	var tied []int64
	for _, ts := range []int64{300, 100, 200, 200} {
		m, err := s.SaveMessage(ctx, &NewMessage{
			ConversationID: convID,
			Sender:         "alice",
			Text:           fmt.Sprintf("at %d", ts),
			Timestamp:      ts,
		})
		require.NoError(t, err)
		if ts == 200 {
			tied = append(tied, m.ID)
		}
	}

	msgs, err := s.GetMessages(ctx, convID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, []int64{100, 200, 200, 300}, []int64{
		msgs[0].Timestamp, msgs[1].Timestamp, msgs[2].Timestamp, msgs[3].Timestamp,
	})
	assert.Equal(t, tied[0], msgs[1].ID)
	assert.Equal(t, tied[1], msgs[2].ID)

	// Repeated reads are stable.
	again, err := s.GetMessages(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, msgs, again)

	// Other conversations stay empty.
	other, err := s.GetMessages(ctx, "alice__carol")
	require.NoError(t, err)
	assert.Empty(t, other)
}
