package ws

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"

	"github.com/mqy/minichat/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Fix error: request origin not allowed by Upgrader.CheckOrigin
	CheckOrigin: func(r *http.Request) bool {
		// When the node is behind nginx: host=ws-backend.
		// TODO: possible SECURITY LEAK.
		return true
	},
}

// Hub owns the connection registry and serves websocket upgrades. It is
// created at process start, handed to the components that push through it,
// and torn down by Run when the context is cancelled.
type Hub struct {
	registry *Registry
}

func NewHub() *Hub {
	return &Hub{registry: NewRegistry()}
}

// Run blocks until `ctx` is done, then closes every live session.
func (h *Hub) Run(ctx context.Context, stopDoneNotifyC chan<- struct{}) {
	<-ctx.Done()
	glog.Infof("close connections ...")
	h.registry.close()
	glog.Infof("close connections done")
	stopDoneNotifyC <- struct{}{}
}

// ServeHTTP handles websocket requests from the peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// If the upgrade fails, then Upgrade replies to the client with an HTTP
	// error response.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("ServeHTTP(): upgrader.Upgrade error: %s", err)
		return
	}

	handler := &Handler{
		hub:        h,
		conn:       conn,
		sid:        strings.ReplaceAll(uuid.New(), "-", ""),
		ip:         getRemoteIP(r),
		createTime: time.Now().Unix(),
		dataChan:   make(chan *SessionData, 16),
	}

	conn.SetCloseHandler(func(code int, text string) error {
		glog.Infof("session closed by peer, session: %s, code: %d, text: %s", handler, code, text)
		h.dropHandler(handler)
		return nil
	})

	h.registry.add(handler)
	sessionsGauge.Set(float64(h.registry.size()))
	glog.V(5).Infof("new session: %s", handler)

	go handler.recvLoop()
	go handler.sendLoop()
}

func (h *Hub) dropHandler(handler *Handler) {
	h.registry.remove(handler)
	sessionsGauge.Set(float64(h.registry.size()))
}

// Notify pushes a `new_message` frame to the recipient's registered channel.
// Best-effort, at-most-once: a missing binding or a session that is no
// longer writable counts as "recipient offline" and the message stays
// reachable through the history pull only. Returns whether the frame was
// enqueued.
func (h *Hub) Notify(username string, msg *store.Message, from string) bool {
	target := h.registry.lookup(username)
	if target == nil {
		pushSkipped.Inc()
		return false
	}

	ok := target.appendDataChan(&SessionData{ServerMsg: &ServerMsg{
		Type:    MsgTypeNewMessage,
		Message: msg,
		From:    from,
	}})
	if !ok {
		glog.V(5).Infof("push skipped, session closing, user: %q", username)
		pushSkipped.Inc()
		return false
	}

	pushDelivered.Inc()
	return true
}

func getRemoteIP(r *http.Request) string {
	ip := r.Header.Get("X-REAL-IP")
	if ip == "" {
		if ips := r.Header.Get("X-FORWARDED-FOR"); ips != "" {
			slice := strings.Split(ips, ",")
			for _, x := range slice {
				if x != "" {
					ip = x
				}
			}
		}
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}

	return ip
}
