package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/minichat/store"
)

type notifyCall struct {
	username string
	msgID    int64
	from     string
}

type fakeNotifier struct {
	online bool
	calls  []notifyCall
}

func (f *fakeNotifier) Notify(username string, msg *store.Message, from string) bool {
	f.calls = append(f.calls, notifyCall{username: username, msgID: msg.ID, from: from})
	return f.online
}

func newTestServer(t *testing.T) (*http.ServeMux, *store.MockIChatStore, *fakeNotifier) {
	ctrl := gomock.NewController(t)
	ms := store.NewMockIChatStore(ctrl)
	fn := &fakeNotifier{}
	mux := http.NewServeMux()
	NewServer(ms, fn, nil).RegisterRoutes(mux)
	return mux, ms, fn
}

func doJSON(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	mux, ms, _ := newTestServer(t)

	ms.EXPECT().GetOrCreateUser(gomock.Any(), "alice").Return(&store.User{
		ID:       1,
		Username: "alice",
		Initials: "A",
		Color:    store.AvatarColor("alice"),
	}, nil)

	rec := doJSON(mux, http.MethodPost, "/api/auth/login", `{"username":"  alice  "}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var u store.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "A", u.Initials)
}

func TestLoginBlankUsername(t *testing.T) {
	mux, _, _ := newTestServer(t)

	rec := doJSON(mux, http.MethodPost, "/api/auth/login", `{"username":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddContact(t *testing.T) {
	mux, ms, _ := newTestServer(t)

	ms.EXPECT().AddContact(gomock.Any(), "alice", "bob carter").Return(&store.Contact{
		Username: "bob carter",
		Initials: "BC",
		Color:    store.AvatarColor("bob carter"),
	}, nil)

	rec := doJSON(mux, http.MethodPost, "/api/contacts", `{"username":"alice","contactUsername":"bob carter"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var c store.Contact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, "BC", c.Initials)
}

func TestAddContactSelf(t *testing.T) {
	mux, _, _ := newTestServer(t)

	rec := doJSON(mux, http.MethodPost, "/api/contacts", `{"username":"alice","contactUsername":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddContactUnknownOwner(t *testing.T) {
	mux, ms, _ := newTestServer(t)

	ms.EXPECT().AddContact(gomock.Any(), "nobody", "bob").Return(nil, store.ErrNotFound)

	rec := doJSON(mux, http.MethodPost, "/api/contacts", `{"username":"nobody","contactUsername":"bob"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListContacts(t *testing.T) {
	mux, ms, _ := newTestServer(t)

	ms.EXPECT().ListContacts(gomock.Any(), "alice").Return(nil, nil)

	rec := doJSON(mux, http.MethodGet, "/api/contacts/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestSendMessageRecipientOnline(t *testing.T) {
	mux, ms, fn := newTestServer(t)
	fn.online = true

	ms.EXPECT().SaveMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, m *store.NewMessage) (*store.Message, error) {
			assert.Equal(t, "alice__bob", m.ConversationID)
			assert.Equal(t, "alice", m.Sender)
			assert.Equal(t, "hi", m.Text)
			assert.Equal(t, int64(100), m.Timestamp)
			return &store.Message{
				ID:             42,
				ConversationID: m.ConversationID,
				Sender:         m.Sender,
				Text:           m.Text,
				Timestamp:      m.Timestamp,
			}, nil
		})

	rec := doJSON(mux, http.MethodPost, "/api/messages",
		`{"sender":"alice","recipient":"bob","text":"hi","timestamp":100}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var msg store.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, int64(42), msg.ID)

	// Exactly one push, carrying the persisted message id.
	require.Len(t, fn.calls, 1)
	assert.Equal(t, notifyCall{username: "bob", msgID: 42, from: "alice"}, fn.calls[0])
}

func TestSendMessageRecipientOffline(t *testing.T) {
	mux, ms, fn := newTestServer(t)
	fn.online = false

	ms.EXPECT().SaveMessage(gomock.Any(), gomock.Any()).Return(&store.Message{ID: 43}, nil)

	// The sender's request succeeds no matter what the push does.
	rec := doJSON(mux, http.MethodPost, "/api/messages",
		`{"sender":"alice","recipient":"bob","text":"hi","timestamp":100}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendMessageEmptyPayload(t *testing.T) {
	mux, _, fn := newTestServer(t)

	rec := doJSON(mux, http.MethodPost, "/api/messages",
		`{"sender":"alice","recipient":"bob","timestamp":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fn.calls)
}

func TestSendMessageMissingParty(t *testing.T) {
	mux, _, _ := newTestServer(t)

	rec := doJSON(mux, http.MethodPost, "/api/messages",
		`{"sender":"alice","text":"hi","timestamp":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMessagesCanonicalizesPair(t *testing.T) {
	mux, ms, _ := newTestServer(t)

	msgs := []*store.Message{
		{ID: 1, ConversationID: "alice__bob", Sender: "alice", Text: "hi", Timestamp: 100},
		{ID: 2, ConversationID: "alice__bob", Sender: "bob", Text: "yo", Timestamp: 101},
	}
	// Requested as bob/alice: the store sees the canonical id either way.
	ms.EXPECT().GetMessages(gomock.Any(), "alice__bob").Return(msgs, nil)

	rec := doJSON(mux, http.MethodGet, "/api/messages/bob/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []*store.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "hi", out[0].Text)
}

func TestGetMessagesEmptyConversation(t *testing.T) {
	mux, ms, _ := newTestServer(t)

	ms.EXPECT().GetMessages(gomock.Any(), "alice__carol").Return(nil, nil)

	rec := doJSON(mux, http.MethodGet, "/api/messages/alice/carol", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestHealth(t *testing.T) {
	mux, _, _ := newTestServer(t)

	rec := doJSON(mux, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out["status"])
	assert.NotZero(t, out["server_time"])
}
