package ferresdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ferres-db/ferresdb-go/internal/frame"
)

// Correlated call timeouts.
const (
	AckTimeout  = 30 * time.Second
	PingTimeout = 10 * time.Second
)

const writeWait = 10 * time.Second

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// callResult resolves a pending correlated call.
type callResult struct {
	frame frame.Frame
	err   error
}

// slot holds at most one pending correlated call.
type slot struct {
	ch chan callResult
}

// Session is a persistent streaming connection.
//
// It supports at most one outstanding write acknowledgement (Upsert, Subscribe)
// and one outstanding heartbeat (Ping) at a time. Issuing a second call of the
// same kind while one is pending fails immediately with ErrCallPending.
// Inbound events are delivered to OnEvent listeners in arrival order on the
// session's read goroutine; listeners must not block.
//
// A Session does not reconnect. After Close or a transport drop it returns to
// StateDisconnected and may be connected again.
type Session struct {
	client *Client
	logger *zap.Logger

	ackTimeout  time.Duration
	pingTimeout time.Duration

	mu            sync.Mutex
	state         SessionState
	conn          *websocket.Conn
	ack           slot
	pong          slot
	subscriptions map[string]EventFilter

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	events      registry[Event]
	errs        registry[*Error]
	disconnects registry[error]
}

// NewSession creates a disconnected streaming session that shares the client's
// configuration, dialer, logger and metrics.
func (c *Client) NewSession() *Session {
	return &Session{
		client:        c,
		logger:        c.logger.Named("session"),
		ackTimeout:    AckTimeout,
		pingTimeout:   PingTimeout,
		subscriptions: make(map[string]EventFilter),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setStateLocked(next SessionState) {
	if s.state != next {
		s.logger.Debug("session state", zap.Stringer("from", s.state), zap.Stringer("to", next))
	}
	s.state = next
}

// Connect opens the streaming connection. It returns ErrAlreadyConnected unless
// the session is disconnected. A rejected handshake is mapped through the error
// taxonomy; any other dial failure is a KindConnection error.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(StateDisconnected)
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.setStateLocked(StateConnected)
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := s.client.streamURL()
	if err != nil {
		return nil, connectionError("building stream url", err)
	}

	conn, resp, err := s.client.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return nil, errorFromResponse(resp.StatusCode, body)
		}
		return nil, connectionError("dialing stream", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, nil
}

// Close drops the connection and returns the session to StateDisconnected.
// Pending correlated calls fail immediately with an error matching both
// ErrConnection and ErrSessionClosed. Subscriptions are forgotten.
// Closing a session that is not connected is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateClosing)
	conn := s.conn
	s.conn = nil
	pending := s.takePendingLocked()
	clear(s.subscriptions)
	s.mu.Unlock()

	// WriteControl may be called concurrently with other writers.
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	err := conn.Close()

	closed := &Error{Kind: KindConnection, Message: "session closed", Err: ErrSessionClosed}
	for _, ch := range pending {
		ch <- callResult{err: closed}
	}

	s.mu.Lock()
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	s.notifyDisconnect(nil)
	return err
}

// takePendingLocked empties both correlation slots and returns their channels.
func (s *Session) takePendingLocked() []chan callResult {
	var out []chan callResult
	for _, sl := range []*slot{&s.ack, &s.pong} {
		if sl.ch != nil {
			out = append(out, sl.ch)
			sl.ch = nil
		}
	}
	return out
}

// Upsert streams points to a collection and waits up to AckTimeout for the
// server's acknowledgement. An error frame received while waiting fails the call
// with the mapped error.
func (s *Session) Upsert(ctx context.Context, collection string, points []Point) (*AckResult, error) {
	raw, err := json.Marshal(points)
	if err != nil {
		return nil, &Error{Kind: KindInvalidPayload, Message: "encoding points", Err: err}
	}
	f, err := s.call(ctx, &s.ack, frame.Frame{
		Type:       frame.TypeUpsert,
		Collection: collection,
		Points:     raw,
	}, s.ackTimeout)
	if err != nil {
		return nil, err
	}
	return &AckResult{Upserted: f.Upserted, Failed: f.Failed, TookMs: f.TookMs}, nil
}

// Subscribe asks the server to stream change events for a collection and waits
// for the acknowledgement. The server applies filter; the session delivers
// whatever it receives to OnEvent listeners.
func (s *Session) Subscribe(ctx context.Context, collection string, filter EventFilter) error {
	if collection == "" {
		return invalidPayload("collection is required")
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	_, err := s.call(ctx, &s.ack, frame.Frame{
		Type:       frame.TypeSubscribe,
		Collection: collection,
		Events:     filter.Actions,
	}, s.ackTimeout)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The connection may have dropped between the ack and here.
	if s.state != StateConnected || s.conn != conn {
		return connectionError("stream disconnected after subscribe", ErrNotConnected)
	}
	s.subscriptions[collection] = EventFilter{Actions: append([]string(nil), filter.Actions...)}
	return nil
}

// Unsubscribe stops events for a collection. No acknowledgement is awaited.
func (s *Session) Unsubscribe(collection string) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	delete(s.subscriptions, collection)
	s.mu.Unlock()

	if err := s.send(conn, frame.Frame{Type: frame.TypeUnsubscribe, Collection: collection}); err != nil {
		return connectionError("sending unsubscribe", err)
	}
	return nil
}

// Subscriptions returns a snapshot of the subscription registry.
func (s *Session) Subscriptions() map[string]EventFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.subscriptions)
}

// Ping sends a heartbeat and returns the round-trip time. It fails with a
// KindConnection error when no pong arrives within PingTimeout.
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := s.call(ctx, &s.pong, frame.Ping(), s.pingTimeout); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// OnEvent registers fn for inbound events and returns a function that removes it.
func (s *Session) OnEvent(fn func(Event)) (remove func()) {
	return s.events.add(fn)
}

// OnError registers fn for inbound error frames and returns a function that removes it.
func (s *Session) OnError(fn func(*Error)) (remove func()) {
	return s.errs.add(fn)
}

// OnDisconnect registers fn for the end of a connection and returns a function
// that removes it. The argument is nil after Close and the transport error after
// a drop.
func (s *Session) OnDisconnect(fn func(error)) (remove func()) {
	return s.disconnects.add(fn)
}

// call sends out and waits for the frame that resolves sl.
func (s *Session) call(ctx context.Context, sl *slot, out frame.Frame, timeout time.Duration) (frame.Frame, error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return frame.Frame{}, ErrNotConnected
	}
	if sl.ch != nil {
		s.mu.Unlock()
		return frame.Frame{}, ErrCallPending
	}
	ch := make(chan callResult, 1)
	sl.ch = ch
	conn := s.conn
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		if sl.ch == ch {
			sl.ch = nil
		}
		s.mu.Unlock()
	}

	if err := s.send(conn, out); err != nil {
		release()
		return frame.Frame{}, connectionError(fmt.Sprintf("sending %s frame", out.Type), err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.frame, r.err
	case <-timer.C:
		release()
		return frame.Frame{}, &Error{
			Kind:    KindConnection,
			Message: fmt.Sprintf("no response to %s frame within %s", out.Type, timeout),
		}
	case <-ctx.Done():
		release()
		return frame.Frame{}, connectionError(fmt.Sprintf("waiting for %s response", out.Type), ctx.Err())
	}
}

// resolve completes the call pending in sl, if any.
func (s *Session) resolve(sl *slot, r callResult) bool {
	s.mu.Lock()
	ch := sl.ch
	sl.ch = nil
	s.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- r
	return true
}

func (s *Session) send(conn *websocket.Conn, f frame.Frame) error {
	data, err := frame.Encode(f)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.client.metrics.frames.WithLabelValues("out", string(f.Type)).Inc()
	return nil
}

// readLoop reads frames until the connection ends.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.dropped(conn, err)
			return
		}

		f, err := frame.Decode(data)
		if err != nil {
			s.logger.Debug("dropping unparseable frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		s.client.metrics.frames.WithLabelValues("in", string(f.Type)).Inc()
		s.dispatch(conn, f, data)
	}
}

// dispatch handles one decoded frame. raw is its wire form, which carries the
// error context of error frames.
func (s *Session) dispatch(conn *websocket.Conn, f frame.Frame, raw []byte) {
	switch f.Type {
	case frame.TypeAck:
		if !s.resolve(&s.ack, callResult{frame: f}) {
			s.logger.Debug("ack without pending call")
		}

	case frame.TypePong:
		s.resolve(&s.pong, callResult{frame: f})

	case frame.TypePing:
		if err := s.send(conn, frame.Pong()); err != nil {
			s.logger.Debug("failed to answer ping", zap.Error(err))
		}

	case frame.TypeEvent:
		ev := Event{
			Collection: f.Collection,
			Action:     f.Action,
			PointIDs:   f.PointIDs,
			Timestamp:  f.Timestamp,
			Data:       f.Data,
		}
		for _, fn := range s.events.snapshot() {
			s.invoke(func() { fn(ev) })
		}

	case frame.TypeError:
		e := NewError(f.Error, f.Message, f.Code, raw)
		s.logger.Warn("server error frame",
			zap.String("error", f.Error),
			zap.String("message", f.Message),
			zap.Int("code", f.Code),
		)
		s.resolve(&s.ack, callResult{err: e})
		for _, fn := range s.errs.snapshot() {
			s.invoke(func() { fn(e) })
		}

	default:
		s.logger.Debug("ignoring frame", zap.String("type", string(f.Type)))
	}
}

// dropped handles the end of conn. It is a no-op when Close already released conn.
func (s *Session) dropped(conn *websocket.Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	pending := s.takePendingLocked()
	clear(s.subscriptions)
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	conn.Close()
	s.logger.Debug("stream disconnected", zap.Error(cause))

	lost := connectionError("stream disconnected", cause)
	for _, ch := range pending {
		ch <- callResult{err: lost}
	}
	s.notifyDisconnect(cause)
}

func (s *Session) notifyDisconnect(cause error) {
	for _, fn := range s.disconnects.snapshot() {
		s.invoke(func() { fn(cause) })
	}
}

// invoke runs a listener, recovering from panics so one listener cannot kill the read loop.
func (s *Session) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// registry is an ordered set of listeners. The zero value is ready to use.
type registry[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry[T]
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, entry[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, e := range r.entries {
				if e.id == id {
					r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
					return
				}
			}
		})
	}
}

func (r *registry[T]) snapshot() []func(T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]func(T), len(r.entries))
	for i, e := range r.entries {
		out[i] = e.fn
	}
	return out
}
