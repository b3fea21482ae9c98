package speech

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the upstream route of a speech session.
type Mode string

const (
	// ModeTranscript streams plain transcription results.
	ModeTranscript Mode = "transcript"
	// ModeDebate streams transcription results with debate scoring attached.
	ModeDebate Mode = "debate"
)

// ParseMode normalises a client supplied mode. Empty selects ModeTranscript.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ModeTranscript):
		return ModeTranscript, nil
	case string(ModeDebate), "scored":
		return ModeDebate, nil
	default:
		return "", fmt.Errorf("unknown speech mode %q", raw)
	}
}

// SpeechConfig 语音桥接配置
type SpeechConfig struct {
	UpstreamURL    string        `json:"upstreamUrl"`    // ws://host:port of the transcription service
	TranscriptPath string        `json:"transcriptPath"` // route for ModeTranscript
	DebatePath     string        `json:"debatePath"`     // route for ModeDebate
	APIKey         string        `json:"apiKey,omitempty"`
	DialTimeout    time.Duration `json:"dialTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
	BufferLimit    int           `json:"bufferLimit"` // bytes buffered before readiness, 0 = unbounded
}

// Route returns the upstream path for mode.
func (c SpeechConfig) Route(mode Mode) string {
	if mode == ModeDebate {
		return c.DebatePath
	}
	return c.TranscriptPath
}
