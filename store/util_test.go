package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationID(t *testing.T) {
	id, err := ConversationID("alice", "bob")
	assert.NoError(t, err)
	assert.Equal(t, "alice__bob", id)

	// Symmetric and stable across repeated calls.
	for i := 0; i < 3; i++ {
		id2, err := ConversationID("bob", "alice")
		assert.NoError(t, err)
		assert.Equal(t, id, id2)
	}

	_, err = ConversationID("", "bob")
	assert.Error(t, err)
	_, err = ConversationID("alice", "")
	assert.Error(t, err)
}

func TestInitials(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"alice", "A"},
		{"bob carter", "BC"},
		{"ada amy anne", "AA"},
		{"  padded   name  ", "PN"},
		{"x", "X"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Initials(c.in), "Initials(%q)", c.in)
	}
}

func TestAvatarColor(t *testing.T) {
	c := AvatarColor("alice")
	assert.Contains(t, avatarPalette, c)

	// Deterministic by the first rune only.
	assert.Equal(t, c, AvatarColor("alice"))
	assert.Equal(t, c, AvatarColor("albert"))

	// 'a' is code point 97, 97 % 6 == 1.
	assert.Equal(t, avatarPalette[1], AvatarColor("alice"))
}
