package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mqy/minichat/store"
)

const (
	// Image payloads arrive as base64 data URLs inside the JSON body.
	maxBodyBytes = 50 << 20

	publishTimeout = 5 * time.Second
)

var messagesStored = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "minichat_messages_stored_total",
	Help: "Messages persisted via POST /api/messages.",
})

func init() {
	prometheus.MustRegister(messagesStored)
}

// Notifier pushes a stored message to the recipient's live channel, if any.
// Implemented by `ws.Hub`.
type Notifier interface {
	Notify(username string, msg *store.Message, from string) bool
}

// Publisher mirrors stored messages to downstream consumers.
// Implemented by `firehose.Firehose`; nil when the mirror is disabled.
type Publisher interface {
	Publish(ctx context.Context, msg *store.Message) error
}

// Server serves the REST surface and coordinates message delivery:
// persistence is the durability guarantee, the push is a best-effort
// latency optimization on top of it.
type Server struct {
	store    store.IChatStore
	notifier Notifier
	firehose Publisher
}

func NewServer(s store.IChatStore, n Notifier, fh Publisher) *Server {
	return &Server{
		store:    s,
		notifier: n,
		firehose: fh,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/contacts", s.handleAddContact)
	mux.HandleFunc("/api/contacts/", s.handleListContacts)
	mux.HandleFunc("/api/messages", s.handleSendMessage)
	mux.HandleFunc("/api/messages/", s.handleGetMessages)
	mux.HandleFunc("/api/health", s.handleHealth)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	u, err := s.store.GetOrCreateUser(r.Context(), username)
	if err != nil {
		s.storeError(w, err, "error creating user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/contacts/"), "/")
	if username == "" || strings.Contains(username, "/") {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	contacts, err := s.store.ListContacts(r.Context(), username)
	if err != nil {
		s.storeError(w, err, "error listing contacts")
		return
	}
	if contacts == nil {
		contacts = []*store.Contact{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Username        string `json:"username"`
		ContactUsername string `json:"contactUsername"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	owner := strings.TrimSpace(req.Username)
	contact := strings.TrimSpace(req.ContactUsername)
	if owner == "" || contact == "" {
		writeError(w, http.StatusBadRequest, "username and contactUsername are required")
		return
	}
	if owner == contact {
		writeError(w, http.StatusBadRequest, "can't add yourself as a contact")
		return
	}

	c, err := s.store.AddContact(r.Context(), owner, contact)
	if err != nil {
		s.storeError(w, err, "error adding contact")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/messages/"), "/"), "/")
	if len(parts) != 2 {
		writeError(w, http.StatusBadRequest, "username and contactUsername are required")
		return
	}

	convID, err := store.ConversationID(parts[0], parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := s.store.GetMessages(r.Context(), convID)
	if err != nil {
		s.storeError(w, err, "error loading messages")
		return
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Text      string `json:"text"`
		Image     string `json:"image"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sender := strings.TrimSpace(req.Sender)
	recipient := strings.TrimSpace(req.Recipient)

	convID, err := store.ConversationID(sender, recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// A message with neither text nor image serves nobody: rejected.
	if req.Text == "" && req.Image == "" {
		writeError(w, http.StatusBadRequest, "message text or image is required")
		return
	}

	msg, err := s.store.SaveMessage(r.Context(), &store.NewMessage{
		ConversationID: convID,
		Sender:         sender,
		Text:           req.Text,
		Image:          req.Image,
		Timestamp:      req.Timestamp,
	})
	if err != nil {
		s.storeError(w, err, "error sending message")
		return
	}
	messagesStored.Inc()

	// Best-effort push. The sender's request succeeds regardless: durability
	// comes from the write above, clients reconcile via the history pull.
	if s.notifier != nil {
		s.notifier.Notify(recipient, msg, sender)
	}

	if s.firehose != nil {
		go func(m *store.Message) {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := s.firehose.Publish(ctx, m); err != nil {
				glog.Errorf("firehose publish err, message id: %d, err: %v", m.ID, err)
			}
		}(msg)
	}

	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"server_time": time.Now().UnixMilli(),
	})
}

// storeError maps store failures onto the response: a missing row where
// creation-on-demand does not apply is the client's fault, everything else
// is a server fault that gets logged and masked.
func (s *Server) storeError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	glog.Errorf("%s: %v", msg, err)
	writeError(w, http.StatusInternalServerError, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("write response err: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
