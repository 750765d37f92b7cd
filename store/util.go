package store

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// conversationSep joins the two usernames of a conversation id. Usernames
// must not contain it.
const conversationSep = "__"

// avatarPalette holds the decorative avatar gradients. Indexed by the first
// rune of the username, so a given name always renders the same.
var avatarPalette = []string{
	"linear-gradient(135deg, #667eea 0%, #764ba2 100%)",
	"linear-gradient(135deg, #f093fb 0%, #f5576c 100%)",
	"linear-gradient(135deg, #4facfe 0%, #00f2fe 100%)",
	"linear-gradient(135deg, #43e97b 0%, #38f9d7 100%)",
	"linear-gradient(135deg, #fa709a 0%, #fee140 100%)",
	"linear-gradient(135deg, #30cfd0 0%, #330867 100%)",
}

// ConversationID maps an unordered username pair to its stable conversation
// id: the pair sorted lexicographically and joined with `conversationSep`.
// ConversationID(a, b) == ConversationID(b, a).
func ConversationID(a, b string) (string, error) {
	if a == "" || b == "" {
		return "", fmt.Errorf("conversation id: empty username")
	}
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, conversationSep), nil
}

// Initials derives the avatar initials of a username: the first rune of each
// whitespace-separated token, uppercased, at most 2 runes.
func Initials(username string) string {
	var out []rune
	for _, token := range strings.Fields(username) {
		for _, r := range token {
			out = append(out, unicode.ToUpper(r))
			break
		}
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}

// AvatarColor picks the avatar gradient for a username from the fixed
// palette, keyed by the code point of the first rune.
func AvatarColor(username string) string {
	for _, r := range username {
		return avatarPalette[int(r)%len(avatarPalette)]
	}
	return avatarPalette[0]
}
