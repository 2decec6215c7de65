// CLAUDE:SUMMARY Screencast hub: CDP screencast frames fanned out to websocket subscribers per session, with a current-frame cache.
package host

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/gorilla/websocket"
)

// Frame is one screencast frame as delivered to subscribers.
type Frame struct {
	Type      string `json:"type"` // always "screencast_frame"
	SessionID string `json:"session_id"`
	Data      string `json:"frame"` // base64 JPEG
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

// subscriber is one websocket client. Writes are serialized by mu; a write
// failure marks the subscriber dead and the next broadcast drops it.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
	dead bool
}

func (sub *subscriber) send(f *Frame) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.dead {
		return false
	}
	sub.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := sub.conn.WriteJSON(f); err != nil {
		sub.dead = true
		sub.conn.Close()
		return false
	}
	return true
}

// Hub relays screencast frames from every session to its websocket
// subscribers. Frame delivery never blocks the CDP event goroutine: a slow
// subscriber is dropped, not waited on.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{} // session id -> subscribers
	latest map[string]*Frame                   // session id -> last frame
	closed bool
}

func newHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[*subscriber]struct{}),
		latest: make(map[string]*Frame),
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// The host binds to loopback or sits behind the shield stack; origin
	// enforcement happens there.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and streams frames for the session named in
// the query until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, `{"error":"session_id required"}`, http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("hub: upgrade failed", "error", err)
		return
	}
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	last := h.latest[sessionID]
	h.mu.Unlock()

	h.logger.Debug("hub: subscriber joined", "session", sessionID)

	// New subscribers see the page immediately instead of waiting for the
	// next repaint.
	if last != nil {
		sub.send(last)
	}

	// Inbound text is either a keyframe request or a ping. Reading also
	// notices disconnects.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if string(msg) == "get_current_frame" {
			if f := h.CurrentFrame(sessionID); f != nil {
				sub.send(f)
			}
		}
	}

	h.mu.Lock()
	if set := h.subs[sessionID]; set != nil {
		delete(set, sub)
	}
	h.mu.Unlock()
	conn.Close()
	h.logger.Debug("hub: subscriber left", "session", sessionID)
}

// CurrentFrame returns the most recent frame for a session, if any.
func (h *Hub) CurrentFrame(sessionID string) *Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest[sessionID]
}

// broadcast caches the frame and pushes it to every live subscriber.
func (h *Hub) broadcast(f *Frame) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.latest[f.SessionID] = f
	set := h.subs[f.SessionID]
	subs := make([]*subscriber, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if !sub.send(f) {
			h.mu.Lock()
			if s := h.subs[f.SessionID]; s != nil {
				delete(s, sub)
			}
			h.mu.Unlock()
		}
	}
}

// startScreencast begins the CDP screencast for a page and relays frames
// until the page's event stream ends. Safe to call for every page a session
// opens; each page gets its own relay goroutine.
func (h *Hub) startScreencast(s *Session, page *rod.Page) {
	quality := 60
	every := 2
	err := proto.PageStartScreencast{
		Format:        proto.PageStartScreencastFormatJpeg,
		Quality:       &quality,
		EveryNthFrame: &every,
	}.Call(page)
	if err != nil {
		h.logger.Debug("hub: screencast start failed", "session", s.ID, "error", err)
		return
	}
	h.logger.Debug("hub: screencast started", "session", s.ID, "target", page.TargetID)

	go page.EachEvent(func(e *proto.PageScreencastFrame) {
		// Ack first: an unacked frame stalls the screencast pipeline.
		if err := (proto.PageScreencastFrameAck{SessionID: e.SessionID}).Call(page); err != nil {
			return
		}
		h.broadcast(&Frame{
			Type:      "screencast_frame",
			SessionID: s.ID,
			Data:      base64.StdEncoding.EncodeToString(e.Data),
			Width:     int(e.Metadata.DeviceWidth),
			Height:    int(e.Metadata.DeviceHeight),
			Timestamp: time.Now().UnixMilli(),
		})
	})()
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*subscriber
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.subs = make(map[string]map[*subscriber]struct{})
	h.latest = make(map[string]*Frame)
	h.mu.Unlock()

	msg, _ := json.Marshal(map[string]string{"event": "closed"})
	for _, sub := range all {
		sub.mu.Lock()
		sub.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, string(msg)),
			time.Now().Add(time.Second))
		sub.conn.Close()
		sub.dead = true
		sub.mu.Unlock()
	}
}
