package speech

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/debate-arena/backend/internal/model/speech"
)

// Session is the bridge of one room. Audio arriving before the upstream is
// open is queued and flushed in arrival order once it is.
type Session struct {
	roomID  string
	ownerID string
	role    string
	mode    speechmodel.Mode

	limit        int
	writeTimeout time.Duration
	startedAt    time.Time

	// mu serialises every upstream write and guards the queue. The flush runs
	// under it, so a chunk relayed meanwhile waits behind the queued ones.
	mu       sync.Mutex
	ready    bool
	pending  [][]byte
	buffered int
	upstream UpstreamConn

	// connMu only guards conn and is never held across I/O, so close never
	// waits for an in-flight write.
	connMu sync.Mutex
	conn   UpstreamConn
	closed atomic.Bool

	finish sync.Once
}

func newSession(req speechmodel.StartRequest, cfg speechmodel.SpeechConfig, now time.Time) *Session {
	return &Session{
		roomID:       req.RoomID,
		ownerID:      req.OwnerID,
		role:         req.Role,
		mode:         req.Mode,
		limit:        cfg.BufferLimit,
		writeTimeout: cfg.WriteTimeout,
		startedAt:    now,
	}
}

// RoomID returns the room the session belongs to.
func (s *Session) RoomID() string { return s.roomID }

// OwnerID returns the participant that started the session.
func (s *Session) OwnerID() string { return s.ownerID }

// Mode returns the upstream route of the session.
func (s *Session) Mode() speechmodel.Mode { return s.mode }

// Ready reports whether the upstream is open and the queue flushed.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Buffered returns the number of queued bytes.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

func (s *Session) relay(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}
	if !s.ready {
		if s.limit > 0 && s.buffered+len(chunk) > s.limit {
			return fmt.Errorf("%w: %d bytes queued", ErrBufferFull, s.buffered)
		}
		s.pending = append(s.pending, append([]byte(nil), chunk...))
		s.buffered += len(chunk)
		return nil
	}
	return s.write(chunk)
}

// write sends one chunk upstream. Callers hold mu.
func (s *Session) write(chunk []byte) error {
	if s.writeTimeout > 0 {
		_ = s.upstream.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.upstream.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("%w: write: %v", ErrUpstream, err)
	}
	return nil
}

// attach installs the opened upstream, flushes the queue and flips
// readiness. A session closed while dialing closes the new connection.
func (s *Session) attach(conn UpstreamConn) error {
	s.connMu.Lock()
	if s.closed.Load() {
		s.connMu.Unlock()
		_ = conn.Close()
		return ErrSessionClosed
	}
	s.conn = conn
	s.connMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.upstream = conn
	for len(s.pending) > 0 {
		if err := s.write(s.pending[0]); err != nil {
			return err
		}
		s.buffered -= len(s.pending[0])
		s.pending[0] = nil
		s.pending = s.pending[1:]
	}
	s.pending = nil
	s.buffered = 0
	s.ready = true
	return nil
}

// close shuts the upstream immediately.
func (s *Session) close() {
	s.closed.Store(true)

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}
