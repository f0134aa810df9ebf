package ferresdbtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamState tracks streaming connections and their controls.
type streamState struct {
	mu        sync.Mutex
	conns     map[*streamConn]struct{}
	received  []json.RawMessage
	muteAcks  bool
	mutePongs bool
}

type streamConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	// subscriptions maps a collection to its action filter; empty means all.
	subscriptions map[string][]string
}

type streamFrame struct {
	Type       string          `json:"type"`
	Collection string          `json:"collection,omitempty"`
	Points     []mockPoint     `json:"points,omitempty"`
	Events     []string        `json:"events,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (st *streamState) init() {
	st.conns = make(map[*streamConn]struct{})
}

func (sc *streamConn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sc.writeRaw(data)
}

func (sc *streamConn) writeRaw(data []byte) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return sc.ws.WriteMessage(websocket.TextMessage, data)
}

// handleStream upgrades /ws and serves the streaming protocol until the client leaves.
func (ms *MockServer) handleStream(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	apiKey := ms.apiKey
	ms.mu.Unlock()

	if apiKey != "" && r.URL.Query().Get("token") != apiKey {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token", nil)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sc := &streamConn{ws: ws, subscriptions: make(map[string][]string)}

	ms.stream.mu.Lock()
	ms.stream.conns[sc] = struct{}{}
	ms.stream.mu.Unlock()

	defer func() {
		ms.stream.mu.Lock()
		delete(ms.stream.conns, sc)
		ms.stream.mu.Unlock()
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		ms.stream.mu.Lock()
		ms.stream.received = append(ms.stream.received, json.RawMessage(slices.Clone(data)))
		muteAcks, mutePongs := ms.stream.muteAcks, ms.stream.mutePongs
		ms.stream.mu.Unlock()

		var f streamFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}

		switch f.Type {
		case "ping":
			if !mutePongs {
				sc.write(map[string]string{"type": "pong"})
			}

		case "upsert":
			ms.streamUpsert(sc, f, muteAcks)

		case "subscribe":
			ms.stream.mu.Lock()
			sc.subscriptions[f.Collection] = f.Events
			ms.stream.mu.Unlock()
			if !muteAcks {
				sc.write(map[string]any{"type": "ack", "upserted": 0, "failed": 0, "took_ms": 0})
			}

		case "unsubscribe":
			ms.stream.mu.Lock()
			delete(sc.subscriptions, f.Collection)
			ms.stream.mu.Unlock()
		}
	}
}

func (ms *MockServer) streamUpsert(sc *streamConn, f streamFrame, muteAcks bool) {
	start := time.Now()

	ms.mu.Lock()
	c, ok := ms.collections[f.Collection]
	if !ok {
		ms.mu.Unlock()
		sc.write(map[string]any{
			"type":    "error",
			"error":   "collection_not_found",
			"message": fmt.Sprintf("collection '%s' not found", f.Collection),
			"code":    http.StatusNotFound,
		})
		return
	}
	upserted, failed := c.upsertLocked(f.Points)
	ms.mu.Unlock()

	if !muteAcks {
		sc.write(map[string]any{
			"type":     "ack",
			"upserted": upserted,
			"failed":   len(failed),
			"took_ms":  time.Since(start).Milliseconds(),
		})
	}
	ms.stream.publish(f.Collection, "upsert", pointIDs(f.Points, failed))
}

// publish sends an event frame to every connection subscribed to collection
// whose filter admits action.
func (st *streamState) publish(collection, action string, ids []string) {
	if len(ids) == 0 {
		return
	}
	frame := map[string]any{
		"type":       "event",
		"collection": collection,
		"action":     action,
		"point_ids":  ids,
		"timestamp":  time.Now().UnixMilli(),
	}

	st.mu.Lock()
	var targets []*streamConn
	for sc := range st.conns {
		actions, ok := sc.subscriptions[collection]
		if ok && (len(actions) == 0 || slices.Contains(actions, action)) {
			targets = append(targets, sc)
		}
	}
	st.mu.Unlock()

	for _, sc := range targets {
		sc.write(frame)
	}
}

// StreamFrames returns every frame received on streaming connections, in order.
func (ms *MockServer) StreamFrames() []json.RawMessage {
	ms.stream.mu.Lock()
	defer ms.stream.mu.Unlock()
	return slices.Clone(ms.stream.received)
}

// StreamConnections returns the number of open streaming connections.
func (ms *MockServer) StreamConnections() int {
	ms.stream.mu.Lock()
	defer ms.stream.mu.Unlock()
	return len(ms.stream.conns)
}

// PushFrame sends raw to every streaming connection verbatim.
func (ms *MockServer) PushFrame(raw string) {
	ms.stream.mu.Lock()
	conns := make([]*streamConn, 0, len(ms.stream.conns))
	for sc := range ms.stream.conns {
		conns = append(conns, sc)
	}
	ms.stream.mu.Unlock()

	for _, sc := range conns {
		sc.writeRaw([]byte(raw))
	}
}

// MuteAcks stops the server from acknowledging upsert and subscribe frames.
func (ms *MockServer) MuteAcks(mute bool) {
	ms.stream.mu.Lock()
	defer ms.stream.mu.Unlock()
	ms.stream.muteAcks = mute
}

// MutePongs stops the server from answering ping frames.
func (ms *MockServer) MutePongs(mute bool) {
	ms.stream.mu.Lock()
	defer ms.stream.mu.Unlock()
	ms.stream.mutePongs = mute
}

// DropStreams closes every streaming connection without a close handshake.
func (ms *MockServer) DropStreams() {
	ms.stream.mu.Lock()
	conns := make([]*streamConn, 0, len(ms.stream.conns))
	for sc := range ms.stream.conns {
		conns = append(conns, sc)
	}
	ms.stream.mu.Unlock()

	for _, sc := range conns {
		sc.ws.Close()
	}
}
