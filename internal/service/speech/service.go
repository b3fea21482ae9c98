package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	speechmodel "github.com/zhouzirui/debate-arena/backend/internal/model/speech"
)

// Notifier receives bridge lifecycle events and transcripts. The realtime
// handler implements it on top of the broadcast hub.
type Notifier interface {
	SpeechReady(ownerID, roomID string, mode speechmodel.Mode)
	SpeechError(ownerID, roomID, message string)
	SpeechDisconnected(ownerID, roomID, reason string)
	Transcript(t speechmodel.Transcript)
}

// Manager keeps at most one speech session per room and relays audio to the
// transcription upstream.
type Manager struct {
	cfg      speechmodel.SpeechConfig
	dialer   Dialer
	notifier Notifier

	mu       sync.Mutex
	sessions map[string]*Session

	wg  sync.WaitGroup
	now func() time.Time
}

// NewManager 创建语音桥接管理器
func NewManager(cfg speechmodel.SpeechConfig, dialer Dialer, notifier Notifier) *Manager {
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		notifier: notifier,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Start registers a not-ready session for the room and dials the upstream in
// the background. guard is evaluated under the manager lock; a false result
// rejects the start with ErrRoomUnavailable.
func (m *Manager) Start(ctx context.Context, req speechmodel.StartRequest, guard func() bool) error {
	if req.Mode == "" {
		req.Mode = speechmodel.ModeTranscript
	}

	m.mu.Lock()
	if guard != nil && !guard() {
		m.mu.Unlock()
		return ErrRoomUnavailable
	}
	if _, exists := m.sessions[req.RoomID]; exists {
		m.mu.Unlock()
		return ErrDuplicateSession
	}
	s := newSession(req, m.cfg, m.now())
	m.sessions[req.RoomID] = s
	m.wg.Add(1)
	m.mu.Unlock()

	log.Info().Str("module", "service.speech").Str("room", req.RoomID).Str("participant", req.OwnerID).
		Str("mode", string(req.Mode)).Msg("speech session starting")

	dialCtx := context.WithoutCancel(ctx)
	go m.connect(dialCtx, s)
	return nil
}

func (m *Manager) connect(ctx context.Context, s *Session) {
	defer m.wg.Done()

	if m.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()
	}

	conn, err := m.dialer.Dial(ctx, s.mode)
	if err != nil {
		log.Error().Str("module", "service.speech").Str("room", s.roomID).Err(err).Msg("upstream dial failed")
		s.close()
		if m.detach(s) {
			m.notifier.SpeechError(s.ownerID, s.roomID, "failed to connect to transcription service")
		}
		return
	}

	if err := s.attach(conn); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return
		}
		log.Error().Str("module", "service.speech").Str("room", s.roomID).Err(err).Msg("flush buffered audio failed")
		m.teardown(s, "upstream write failed")
		return
	}

	log.Info().Str("module", "service.speech").Str("room", s.roomID).Dur("connect", m.now().Sub(s.startedAt)).Msg("speech session ready")
	m.notifier.SpeechReady(s.ownerID, s.roomID, s.mode)

	m.wg.Add(1)
	go m.readLoop(s, conn)
}

func (m *Manager) readLoop(s *Session, conn UpstreamConn) {
	defer m.wg.Done()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			reason := "upstream closed"
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Str("module", "service.speech").Str("room", s.roomID).Err(err).Msg("upstream read failed")
				reason = "upstream read error"
			}
			m.teardown(s, reason)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		m.handleUpstream(s, payload)
	}
}

func (m *Manager) handleUpstream(s *Session, payload []byte) {
	var msg speechmodel.UpstreamMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Warn().Str("module", "service.speech").Str("room", s.roomID).Err(err).Msg("malformed upstream message dropped")
		return
	}

	if len(msg.Error) > 0 && string(msg.Error) != "null" {
		text := upstreamErrorText(msg.Error)
		log.Warn().Str("module", "service.speech").Str("room", s.roomID).Str("error", text).Msg("upstream reported error")
		m.notifier.SpeechError(s.ownerID, s.roomID, text)
		return
	}
	if msg.Info != "" {
		log.Info().Str("module", "service.speech").Str("room", s.roomID).Str("info", msg.Info).Msg("upstream info")
	}
	if msg.Text == nil {
		return
	}

	m.notifier.Transcript(speechmodel.Transcript{
		RoomID:    s.roomID,
		Text:      *msg.Text,
		Speaker:   s.ownerID,
		Role:      s.role,
		Timestamp: m.now().UnixMilli(),
		Scores:    msg.Scores,
	})
}

// upstreamErrorText flattens the error field, which is a string or an object.
func upstreamErrorText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return strings.TrimSpace(string(raw))
}

// Relay encodes samples as PCM16 and relays them to the room's session.
func (m *Manager) Relay(roomID string, samples []float64) error {
	return m.RelayPCM(roomID, EncodePCM16(samples))
}

// RelayPCM relays an already encoded PCM16 LE chunk.
func (m *Manager) RelayPCM(roomID string, pcm []byte) error {
	if len(pcm)%2 != 0 {
		return ErrOddFrame
	}
	s := m.lookup(roomID)
	if s == nil {
		return ErrSessionNotFound
	}
	return m.relay(s, pcm)
}

// RelayOwned relays a chunk to the session started by ownerID.
func (m *Manager) RelayOwned(ownerID string, pcm []byte) error {
	if len(pcm)%2 != 0 {
		return ErrOddFrame
	}
	m.mu.Lock()
	var s *Session
	for _, candidate := range m.sessions {
		if candidate.ownerID == ownerID {
			s = candidate
			break
		}
	}
	m.mu.Unlock()
	if s == nil {
		return ErrSessionNotFound
	}
	return m.relay(s, pcm)
}

func (m *Manager) relay(s *Session, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	err := s.relay(pcm)
	if err != nil && errors.Is(err, ErrUpstream) {
		log.Error().Str("module", "service.speech").Str("room", s.roomID).Err(err).Msg("relay audio failed")
		m.teardown(s, "upstream write failed")
	}
	return err
}

// Stop tears down the room's session. A room without a session is a no-op
// returning ErrSessionNotFound.
func (m *Manager) Stop(roomID string) error {
	s := m.lookup(roomID)
	if s == nil {
		return ErrSessionNotFound
	}
	m.teardown(s, "stopped")
	return nil
}

// StopOwnedBy tears down every session started by ownerID and returns how
// many were stopped.
func (m *Manager) StopOwnedBy(ownerID string) int {
	m.mu.Lock()
	owned := make([]*Session, 0, 1)
	for _, s := range m.sessions {
		if s.ownerID == ownerID {
			owned = append(owned, s)
		}
	}
	m.mu.Unlock()

	for _, s := range owned {
		m.teardown(s, "owner disconnected")
	}
	return len(owned)
}

// Shutdown stops every session and waits for background goroutines until
// ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.teardown(s, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("speech shutdown: %w", ctx.Err())
	}
}

// Active returns the session of a room, if any.
func (m *Manager) Active(roomID string) (*Session, bool) {
	s := m.lookup(roomID)
	return s, s != nil
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(roomID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[roomID]
}

// teardown closes the upstream, removes the session and notifies the owner.
// It runs at most once per session.
func (m *Manager) teardown(s *Session, reason string) {
	s.finish.Do(func() {
		s.close()
		if !m.detach(s) {
			return
		}
		log.Info().Str("module", "service.speech").Str("room", s.roomID).Str("participant", s.ownerID).
			Str("reason", reason).Msg("speech session closed")
		m.notifier.SpeechDisconnected(s.ownerID, s.roomID, reason)
	})
}

// detach removes s from the map if it is still the room's session.
func (m *Manager) detach(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.roomID]; ok && cur == s {
		delete(m.sessions, s.roomID)
		return true
	}
	return false
}
