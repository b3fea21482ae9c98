package speech

import "encoding/json"

// UpstreamMessage is one JSON frame emitted by the transcription service.
type UpstreamMessage struct {
	Text   *string         `json:"text,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
	Info   string          `json:"info,omitempty"`
	Scores json.RawMessage `json:"scores,omitempty"`
}

// Transcript is broadcast to the whole room for every recognised segment.
type Transcript struct {
	RoomID    string          `json:"roomId"`
	Text      string          `json:"text"`
	Speaker   string          `json:"speaker"`
	Role      string          `json:"role,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Scores    json.RawMessage `json:"scores,omitempty"`
}
