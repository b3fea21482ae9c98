package debate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	debatemodel "github.com/zhouzirui/debate-arena/backend/internal/model/debate"
)

// ErrProtocol marks an inbound frame that could not be decoded.
var ErrProtocol = errors.New("protocol error")

// Inbound event types.
const (
	EventGetDebates          = "get_debates"
	EventCreateDebate        = "create_debate"
	EventJoinDebate          = "join_debate"
	EventLeaveDebate         = "leave_debate"
	EventDeleteDebate        = "delete_debate"
	EventSendMessage         = "send_message"
	EventSendReply           = "send_reply"
	EventVoteMessage         = "vote_message"
	EventStartSpeech         = "start_speech_to_text"
	EventSendAudio           = "send_audio_data"
	EventStopSpeech          = "stop_speech_to_text"
	EventBroadcastTranscript = "broadcast_transcript"
	EventPing                = "ping"
)

// Outbound event types.
const (
	EventDebatesUpdate      = "debates_update"
	EventRoleAssigned       = "role_assigned"
	EventMessagesUpdate     = "debate_messages_update"
	EventSpeechReady        = "speech_ready"
	EventSpeechError        = "speech_error"
	EventSpeechDisconnected = "speech_disconnected"
	EventTranscriptUpdate   = "live_transcript_update"
	EventPong               = "pong"
)

type inboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeEnvelope(raw []byte) (inboundEnvelope, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return env, fmt.Errorf("%w: missing event type", ErrProtocol)
	}
	return env, nil
}

// decodePayload unmarshals data into v. An absent payload leaves v zero.
func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}

// roomField carries the room id of compound payloads. debateId is the name
// older clients use.
type roomField struct {
	RoomID   string `json:"roomId"`
	DebateID string `json:"debateId"`
}

func (f roomField) room() string {
	if id := strings.TrimSpace(f.RoomID); id != "" {
		return id
	}
	return strings.TrimSpace(f.DebateID)
}

// roomRef is a room id sent either as a bare string or as {"roomId": ...}.
type roomRef string

func (r *roomRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = roomRef(strings.TrimSpace(s))
		return nil
	}
	var f roomField
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = roomRef(f.room())
	return nil
}

type createPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type messagePayload struct {
	roomField
	Message debatemodel.Message `json:"message"`
}

type replyPayload struct {
	roomField
	ParentID string              `json:"parentId"`
	Reply    debatemodel.Message `json:"reply"`
}

type votePayload struct {
	roomField
	MessageID string `json:"messageId"`
	VoterID   string `json:"voterId"`
	UserID    string `json:"userId"`
	Delta     int    `json:"delta"`
}

func (p votePayload) voter() string {
	if p.VoterID != "" {
		return p.VoterID
	}
	return p.UserID
}

type startSpeechPayload struct {
	roomField
	Mode string `json:"mode"`
}

type audioPayload struct {
	roomField
	Samples []float64 `json:"samples"`
}

type transcriptPayload struct {
	roomField
	Text      string `json:"text"`
	Speaker   string `json:"speaker"`
	Timestamp int64  `json:"timestamp"`
}

type roleAssigned struct {
	RoomID string           `json:"roomId"`
	Role   debatemodel.Role `json:"role"`
}

type speechStatus struct {
	RoomID  string `json:"roomId"`
	Mode    string `json:"mode,omitempty"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
