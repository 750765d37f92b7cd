package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/mqy/minichat/store"
)

type SessionError int

const (
	ReadError  SessionError = 1
	WriteError SessionError = 2
	PingError  SessionError = 3
	BadRequest SessionError = 4
	ServerStop SessionError = 5
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read. Clients only send register and
	// unregister frames here; images travel over the REST surface.
	readLimit = 4096
)

// Frame types of the channel protocol.
const (
	MsgTypeRegister   = "register"
	MsgTypeUnregister = "unregister"
	MsgTypeNewMessage = "new_message"
)

// ClientMsg is a tagged frame from client to server.
type ClientMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// ServerMsg is a tagged frame from server to client.
type ServerMsg struct {
	Type    string         `json:"type"`
	Message *store.Message `json:"message,omitempty"`
	From    string         `json:"from,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// SessionData is the data structure for `dataChan`.
type SessionData struct {
	Error     SessionError `json:"error,omitempty"`
	ServerMsg *ServerMsg   `json:"resp,omitempty"`
}

// Handler manages an active connection to an end user.
// Every new websocket connection creates a new session.
type Handler struct {
	sync.Mutex

	hub  *Hub
	conn *websocket.Conn

	sid        string
	ip         string
	createTime int64

	// username this channel is currently bound to, empty before the first
	// register frame. Under the mutex.
	username string

	dataChan chan *SessionData

	closing bool
}

func (h *Handler) String() string {
	h.Lock()
	name := h.username
	h.Unlock()
	return fmt.Sprintf("sid: %s, username: %q, ip: %s", h.sid, name, h.ip)
}

func (h *Handler) setUsername(name string) {
	h.Lock()
	h.username = name
	h.Unlock()
}

func (h *Handler) close(cause SessionError) {
	h.Lock()
	defer h.Unlock()
	if h.closing {
		return
	}

	h.closing = true

	h.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = h.conn.WriteMessage(websocket.CloseMessage, []byte{})
	h.conn.Close()

	close(h.dataChan)

	if cause != ServerStop {
		glog.V(5).Infof("session closed, cause: %d, %s", cause, h.sid)
		// Ask the hub to remove this handler.
		h.hub.dropHandler(h)
	}
}

// appendDataChan enqueues data for the send loop, reporting whether the
// session was still writable. A false return means the recipient counts as
// offline. The enqueue never blocks: a session whose backlog is full is as
// unwritable as a closed one, and callers run on request goroutines that
// must not wait for a stalled peer.
func (h *Handler) appendDataChan(v *SessionData) bool {
	h.Lock()
	defer h.Unlock()
	if h.closing {
		return false
	}
	select {
	case h.dataChan <- v:
		return true
	default:
		return false
	}
}

func (h *Handler) isClosing() bool {
	h.Lock()
	defer h.Unlock()
	return h.closing
}

func sendServerMsg(conn *websocket.Conn, msg *ServerMsg) error {
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, out)
}

func (h *Handler) recvLoop() {
	defer func() { glog.V(5).Infof("recvLoop(): exited, session: %s", h) }()

	h.conn.SetReadLimit(readLimit)
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	h.conn.SetPongHandler(func(s string) error {
		h.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for !h.isClosing() {
		msgType, msg, err := h.conn.ReadMessage()
		if err != nil {
			glog.V(5).Infof("recvLoop(): read error: %v", err)
			h.appendDataChan(&SessionData{Error: ReadError})
			return
		}

		glog.V(5).Infof("recvLoop(): incoming client message: %v", string(msg))

		if msgType != websocket.TextMessage {
			glog.Errorf("recvLoop(): unexpected message type: %d", msgType)
			h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{
				Error: "websocket only supports TextMessage",
			}})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		req := ClientMsg{}
		if err := json.Unmarshal(msg, &req); err != nil {
			glog.Errorf("recvLoop(): message error: msg: %s, err: %v", string(msg), err)
			h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{
				Error: fmt.Sprintf("unmarshal error: %v", err),
			}})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		username := strings.TrimSpace(req.Username)

		switch req.Type {
		case MsgTypeRegister:
			if username == "" {
				h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{
					Error: "register: username is required",
				}})
				continue
			}
			h.setUsername(username)
			h.hub.registry.bind(username, h)
			glog.Infof("user %q registered, session: %s", username, h.sid)
		case MsgTypeUnregister:
			if username == "" {
				h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{
					Error: "unregister: username is required",
				}})
				continue
			}
			h.hub.registry.unbind(username)
			glog.Infof("user %q unregistered, session: %s", username, h.sid)
		default:
			glog.Errorf("recvLoop(): unsupported request: %+v", req)
			h.appendDataChan(&SessionData{ServerMsg: &ServerMsg{
				Error: "unsupported request",
			}})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}
	}
}

func (h *Handler) sendLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("sendLoop(): exited, session: %s", h)
	}()

	for {
		select {
		case v, ok := <-h.dataChan:
			if !ok { // chan was closed
				h.conn.Close()
				glog.V(5).Infof("sendLoop(): data chan closed, session: %s", h)
				return
			}

			if v.Error > 0 {
				h.close(v.Error)
				return
			} else if v.ServerMsg == nil {
				// should not happen.
				panic(fmt.Sprintf("sendLoop(), unknown data from dataChan: %#+v", v))
			}

			if err := sendServerMsg(h.conn, v.ServerMsg); err != nil {
				glog.Errorf("sendLoop(), error write message. session: %s, err: %v", h, err)
				h.appendDataChan(&SessionData{Error: WriteError})
				return
			}
		case <-pingTicker.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				glog.Errorf("sendLoop(), error write ping message. session: %s, err: %v", h, err)
				h.appendDataChan(&SessionData{Error: PingError})
				return
			}
		}
	}
}
