// Package session implements the per-connection state machine: the phase
// (unjoined vs joined, tracked indirectly through which hub.Handler is
// currently installed), the read loop, and the single writer goroutine —
// the "strand" — that guarantees at most one outbound write is ever
// in-flight on a session's WebSocket connection at a time.
package session

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/kamilrusin/fusion-relay/internal/hub"
	"github.com/kamilrusin/fusion-relay/internal/wire"
)

// Session is one accepted, upgraded WebSocket connection. It satisfies
// hub.Conn and relay.Member structurally; neither of those packages
// imports this one.
type Session struct {
	conn   *websocket.Conn
	remote string
	log    *zerolog.Logger
	reg    *hub.Registry

	handlerMtx sync.Mutex
	handler    hub.Handler

	outMtx   sync.Mutex
	outbound [][]byte
	wake     chan struct{}

	closeOnce      sync.Once
	closeRequested chan struct{}
	closed         chan struct{}
}

// New wraps an already-upgraded WebSocket connection. The session is not
// registered or running until Run is called.
func New(conn *websocket.Conn, remote string, log *zerolog.Logger, reg *hub.Registry) *Session {
	return &Session{
		conn:           conn,
		remote:         remote,
		log:            log,
		reg:            reg,
		wake:           make(chan struct{}, 1),
		closeRequested: make(chan struct{}),
		closed:         make(chan struct{}),
	}
}

// RemoteEndpoint satisfies relay.Member.
func (s *Session) RemoteEndpoint() string { return s.remote }

// SetHandler installs the handler used for the session's next frame,
// effectively changing its phase (§4.3/§4.4).
func (s *Session) SetHandler(h hub.Handler) {
	s.handlerMtx.Lock()
	s.handler = h
	s.handlerMtx.Unlock()
}

func (s *Session) currentHandler() hub.Handler {
	s.handlerMtx.Lock()
	defer s.handlerMtx.Unlock()
	return s.handler
}

// Write enqueues frame for delivery by the session's writer goroutine. It
// never blocks the caller — including a room Broadcast holding a team
// lock — on a slow peer.
func (s *Session) Write(frame []byte) {
	if frame == nil {
		return
	}
	s.outMtx.Lock()
	s.outbound = append(s.outbound, frame)
	s.outMtx.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close tears down the connection without sending a final frame. It blocks
// until the writer goroutine has actually closed the underlying connection,
// so a caller never observes a half-torn-down session.
func (s *Session) Close() {
	s.requestClose()
	<-s.closed
}

// CloseWithFrame enqueues a final frame and blocks until the writer
// goroutine — the only goroutine that ever touches conn — has written that
// frame and then closed the connection. This is the "send final frame, then
// close" guarantee §4.3/§7/§8 require of a closed error response: the frame
// is appended to outbound under outMtx before closeRequested is signaled, so
// the writer goroutine can never observe the close request without also
// observing the frame that precedes it.
func (s *Session) CloseWithFrame(frame []byte) {
	s.Write(frame)
	s.requestClose()
	<-s.closed
}

func (s *Session) requestClose() {
	s.closeOnce.Do(func() {
		close(s.closeRequested)
	})
}

// Run blocks for the lifetime of the connection: it starts the writer
// goroutine, registers the session with the hub, and services frames until
// the connection closes or fails. Run always ends by calling Unregister for
// the session, which is a no-op once the registry is shutting down.
func (s *Session) Run(ctx context.Context) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writerLoop(ctx)
	}()

	s.SetHandler(s.reg.Register(s))
	defer func() {
		s.reg.Unregister(s)
		s.Close()
		<-writerDone
	}()

	for {
		typ, raw, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		frame, errFrame := wire.Verify(raw)
		if errFrame != nil {
			if errFrame.Closed {
				s.closeWithValue(errFrame)
				return
			}
			s.writeValue(errFrame)
			continue
		}

		if h := s.currentHandler(); h != nil {
			h.HandleFrame(s, frame)
		}

		select {
		case <-s.closeRequested:
			return
		default:
		}
	}
}

func (s *Session) writeValue(v any) {
	b, err := wire.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal frame")
		return
	}
	s.Write(b)
}

func (s *Session) closeWithValue(v any) {
	b, err := wire.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal frame")
		s.Close()
		return
	}
	s.CloseWithFrame(b)
}

// writerLoop is the strand: it is the only goroutine that ever calls
// conn.Write or conn.Close, so writes for a single session are always
// serialized and a close can never race a write for the same connection.
func (s *Session) writerLoop(ctx context.Context) {
	for {
		select {
		case <-s.closeRequested:
			s.drainOnce()
			s.finishClose()
			return
		case <-s.wake:
			s.drainOnce()
			select {
			case <-s.closeRequested:
				s.drainOnce()
				s.finishClose()
				return
			default:
			}
		}
	}
}

// finishClose actually tears down the connection. It only ever runs on the
// writer goroutine, after drainOnce has flushed everything queued ahead of
// the close request, so a final frame enqueued by CloseWithFrame is always
// on the wire before the connection goes away.
func (s *Session) finishClose() {
	s.conn.Close(websocket.StatusNormalClosure, "closing")
	close(s.closed)
}

func (s *Session) drainOnce() {
	for {
		s.outMtx.Lock()
		if len(s.outbound) == 0 {
			s.outMtx.Unlock()
			return
		}
		frame := s.outbound[0]
		s.outbound = s.outbound[1:]
		s.outMtx.Unlock()

		if err := s.conn.Write(context.Background(), websocket.MessageText, frame); err != nil {
			s.log.Warn().Err(err).Str("remote", s.remote).Msg("failed to write frame")
			return
		}
	}
}
