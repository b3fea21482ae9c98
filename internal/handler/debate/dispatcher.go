package debate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	debatemodel "github.com/zhouzirui/debate-arena/backend/internal/model/debate"
	speechmodel "github.com/zhouzirui/debate-arena/backend/internal/model/speech"
	"github.com/zhouzirui/debate-arena/backend/internal/service/broadcast"
	debateservice "github.com/zhouzirui/debate-arena/backend/internal/service/debate"
	"github.com/zhouzirui/debate-arena/backend/internal/service/speech"
)

// SpeechBridge is the part of the speech manager the dispatcher drives.
type SpeechBridge interface {
	Start(ctx context.Context, req speechmodel.StartRequest, guard func() bool) error
	Relay(roomID string, samples []float64) error
	RelayOwned(ownerID string, pcm []byte) error
	Stop(roomID string) error
	StopOwnedBy(ownerID string) int
}

// Dispatcher decodes client events, applies them to the registry and the
// speech bridge, and broadcasts the resulting state through the hub.
type Dispatcher struct {
	registry *debateservice.Registry
	hub      *broadcast.Hub
	bridges  SpeechBridge
	limiter  *RateLimiter
}

// NewDispatcher wires the dispatcher. bridges may be nil when the speech relay
// is disabled.
func NewDispatcher(registry *debateservice.Registry, hub *broadcast.Hub, bridges SpeechBridge, limiter *RateLimiter) *Dispatcher {
	return &Dispatcher{registry: registry, hub: hub, bridges: bridges, limiter: limiter}
}

// Handle processes one text frame from a participant.
func (d *Dispatcher) Handle(ctx context.Context, participantID string, raw []byte) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		log.Warn().Str("module", "handler.debate").Str("participant", participantID).Err(err).Msg("inbound frame dropped")
		return
	}

	if env.Type != EventSendAudio && !d.limiter.Allow(participantID) {
		log.Warn().Str("module", "handler.debate").Str("participant", participantID).Str("event", env.Type).Msg("event rate limited")
		return
	}

	if err := d.route(ctx, participantID, env); err != nil {
		if errors.Is(err, ErrProtocol) {
			log.Warn().Str("module", "handler.debate").Str("participant", participantID).Str("event", env.Type).Err(err).Msg("payload dropped")
			return
		}
		log.Debug().Str("module", "handler.debate").Str("participant", participantID).Str("event", env.Type).Err(err).Msg("event ignored")
	}
}

func (d *Dispatcher) route(ctx context.Context, pid string, env inboundEnvelope) error {
	switch env.Type {
	case EventGetDebates:
		d.hub.SendTo(pid, broadcast.NewEvent(EventDebatesUpdate, d.registry.Directory()))
		return nil
	case EventCreateDebate:
		return d.handleCreate(env)
	case EventJoinDebate:
		return d.handleJoin(pid, env)
	case EventLeaveDebate:
		return d.handleLeave(pid, env)
	case EventDeleteDebate:
		return d.handleDelete(env)
	case EventSendMessage:
		return d.handleMessage(env)
	case EventSendReply:
		return d.handleReply(env)
	case EventVoteMessage:
		return d.handleVote(pid, env)
	case EventStartSpeech:
		return d.handleStartSpeech(ctx, pid, env)
	case EventSendAudio:
		return d.handleAudio(env)
	case EventStopSpeech:
		return d.handleStopSpeech(env)
	case EventBroadcastTranscript:
		return d.handleTranscript(env)
	case EventPing:
		d.hub.SendTo(pid, broadcast.NewEvent(EventPong, nil))
		return nil
	default:
		log.Warn().Str("module", "handler.debate").Str("event", env.Type).Msg("unknown event")
		return nil
	}
}

func (d *Dispatcher) broadcastDirectory() {
	d.hub.ToAll(broadcast.NewEvent(EventDebatesUpdate, d.registry.Directory()))
}

func (d *Dispatcher) handleCreate(env inboundEnvelope) error {
	var p createPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return err
	}
	room, err := d.registry.Create(debatemodel.Descriptor{ID: p.ID, Title: p.Title, Description: p.Description})
	if err != nil {
		log.Warn().Str("module", "handler.debate").Str("room", p.ID).Err(err).Msg("create debate rejected")
		return nil
	}
	log.Debug().Str("module", "handler.debate").Str("room", room.ID).Msg("debate created")
	d.broadcastDirectory()
	return nil
}

func (d *Dispatcher) handleJoin(pid string, env inboundEnvelope) error {
	var room roomRef
	if err := decodePayload(env.Data, &room); err != nil {
		return err
	}
	roomID := string(room)

	res, err := d.registry.Join(roomID, pid)
	if err != nil {
		return err
	}

	// a delete racing this join has already dropped the room's fan-out set
	if !d.hub.SubscribeIf(roomID, pid, func() bool { return d.registry.Exists(roomID) }) {
		return debateservice.ErrRoomNotFound
	}
	d.hub.SendTo(pid, broadcast.NewEvent(EventRoleAssigned, roleAssigned{RoomID: roomID, Role: res.Role}))
	d.hub.SendTo(pid, broadcast.NewEvent(EventMessagesUpdate, res.Snapshot))
	d.broadcastDirectory()
	return nil
}

func (d *Dispatcher) handleLeave(pid string, env inboundEnvelope) error {
	var room roomRef
	if err := decodePayload(env.Data, &room); err != nil {
		return err
	}
	roomID := string(room)

	if _, err := d.registry.Leave(roomID, pid); err != nil {
		return err
	}
	d.hub.Unsubscribe(roomID, pid)
	d.broadcastDirectory()
	return nil
}

func (d *Dispatcher) handleDelete(env inboundEnvelope) error {
	var room roomRef
	if err := decodePayload(env.Data, &room); err != nil {
		return err
	}
	roomID := string(room)

	if err := d.registry.Delete(roomID); err != nil {
		return err
	}
	if d.bridges != nil {
		if err := d.bridges.Stop(roomID); err != nil && !errors.Is(err, speech.ErrSessionNotFound) {
			log.Warn().Str("module", "handler.debate").Str("room", roomID).Err(err).Msg("stop speech on delete failed")
		}
	}
	d.hub.DropRoom(roomID)
	d.broadcastDirectory()
	return nil
}

func (d *Dispatcher) handleMessage(env inboundEnvelope) error {
	var p messagePayload
	if err := decodePayload(env.Data, &p); err != nil {
		return err
	}
	roomID := p.room()

	snap, err := d.registry.SubmitMessage(roomID, p.Message)
	if err != nil {
		return err
	}
	d.hub.ToRoom(roomID, broadcast.NewEvent(EventMessagesUpdate, snap))
	return nil
}

func (d *Dispatcher) handleReply(env inboundEnvelope) error {
	var p replyPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return err
	}
	roomID := p.room()

	snap, _, err := d.registry.SubmitReply(roomID, p.ParentID, p.Reply)
	if err != nil {
		return err
	}
	d.hub.ToRoom(roomID, broadcast.NewEvent(EventMessagesUpdate, snap))
	return nil
}

func (d *Dispatcher) handleVote(pid string, env inboundEnvelope) error {
	var p votePayload
	if err := decodePayload(env.Data, &p); err != nil {
		return err
	}
	roomID := p.room()
	voter := p.voter()
	if voter == "" {
		voter = pid
	}

	snap, _, err := d.registry.CastVote(roomID, p.MessageID, voter, p.Delta)
	if errors.Is(err, debateservice.ErrRoomNotFound) {
		return err
	}
	if err != nil {
		log.Debug().Str("module", "handler.debate").Str("room", roomID).Int("delta", p.Delta).Err(err).Msg("vote ignored")
	}
	d.hub.ToRoom(roomID, broadcast.NewEvent(EventMessagesUpdate, snap))
	return nil
}

func (d *Dispatcher) handleStartSpeech(ctx context.Context, pid string, env inboundEnvelope) error {
	var p startSpeechPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return err
	}
	roomID := p.room()

	if d.bridges == nil {
		d.speechError(pid, roomID, "speech relay is disabled")
		return nil
	}

	mode, err := speechmodel.ParseMode(p.Mode)
	if err != nil {
		d.speechError(pid, roomID, err.Error())
		return nil
	}

	role, _ := d.registry.Role(roomID, pid)
	req := speechmodel.StartRequest{RoomID: roomID, OwnerID: pid, Role: string(role), Mode: mode}
	err = d.bridges.Start(ctx, req, func() bool { return d.registry.Exists(roomID) })
	switch {
	case err == nil:
		return nil
	case errors.Is(err, speech.ErrRoomUnavailable):
		d.speechError(pid, roomID, "debate not found")
	case errors.Is(err, speech.ErrDuplicateSession):
		d.speechError(pid, roomID, "speech session already active for this debate")
	default:
		d.speechError(pid, roomID, "failed to start speech session")
	}
	return err
}

func (d *Dispatcher) handleAudio(env inboundEnvelope) error {
	var p audioPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return err
	}
	if d.bridges == nil {
		return nil
	}
	err := d.bridges.Relay(p.room(), p.Samples)
	if errors.Is(err, speech.ErrBufferFull) {
		log.Warn().Str("module", "handler.debate").Str("room", p.room()).Msg("audio chunk dropped, buffer full")
	}
	return err
}

func (d *Dispatcher) handleStopSpeech(env inboundEnvelope) error {
	var room roomRef
	if err := decodePayload(env.Data, &room); err != nil {
		return err
	}
	if d.bridges == nil {
		return nil
	}
	return d.bridges.Stop(string(room))
}

func (d *Dispatcher) handleTranscript(env inboundEnvelope) error {
	var p transcriptPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return err
	}
	roomID := p.room()
	if !d.registry.Exists(roomID) {
		return debateservice.ErrRoomNotFound
	}
	if p.Timestamp == 0 {
		p.Timestamp = time.Now().UnixMilli()
	}
	d.hub.ToRoom(roomID, broadcast.NewEvent(EventTranscriptUpdate, speechmodel.Transcript{
		RoomID:    roomID,
		Text:      p.Text,
		Speaker:   p.Speaker,
		Timestamp: p.Timestamp,
	}))
	return nil
}

// RelayBinary forwards a raw PCM16 frame to the bridge the participant owns.
func (d *Dispatcher) RelayBinary(participantID string, frame []byte) {
	if d.bridges == nil {
		return
	}
	if err := d.bridges.RelayOwned(participantID, frame); err != nil {
		if errors.Is(err, speech.ErrOddFrame) {
			log.Warn().Str("module", "handler.debate").Str("participant", participantID).Int("bytes", len(frame)).Msg("odd-length audio frame dropped")
			return
		}
		log.Debug().Str("module", "handler.debate").Str("participant", participantID).Err(err).Msg("binary audio ignored")
	}
}

// Disconnect removes the participant from every room, stops the bridges it
// owns and refreshes the directory.
func (d *Dispatcher) Disconnect(participantID string) {
	changed := d.registry.LeaveAll(participantID)
	stopped := 0
	if d.bridges != nil {
		stopped = d.bridges.StopOwnedBy(participantID)
	}
	d.limiter.Forget(participantID)

	log.Info().Str("module", "handler.debate").Str("participant", participantID).
		Int("rooms", len(changed)).Int("bridges", stopped).Msg("participant disconnected")
	if len(changed) > 0 {
		d.broadcastDirectory()
	}
}

func (d *Dispatcher) speechError(pid, roomID, message string) {
	d.hub.SendTo(pid, broadcast.NewEvent(EventSpeechError, speechStatus{RoomID: roomID, Message: message}))
}
