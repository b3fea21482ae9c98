package debate

import (
	speechmodel "github.com/zhouzirui/debate-arena/backend/internal/model/speech"
	"github.com/zhouzirui/debate-arena/backend/internal/service/broadcast"
)

// HubNotifier delivers speech bridge events over the broadcast hub. Status
// events go to the session owner, transcripts to the whole room.
type HubNotifier struct {
	hub *broadcast.Hub
}

// NewHubNotifier creates a notifier on top of hub.
func NewHubNotifier(hub *broadcast.Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) SpeechReady(ownerID, roomID string, mode speechmodel.Mode) {
	n.hub.SendTo(ownerID, broadcast.NewEvent(EventSpeechReady, speechStatus{RoomID: roomID, Mode: string(mode)}))
}

func (n *HubNotifier) SpeechError(ownerID, roomID, message string) {
	n.hub.SendTo(ownerID, broadcast.NewEvent(EventSpeechError, speechStatus{RoomID: roomID, Message: message}))
}

func (n *HubNotifier) SpeechDisconnected(ownerID, roomID, reason string) {
	n.hub.SendTo(ownerID, broadcast.NewEvent(EventSpeechDisconnected, speechStatus{RoomID: roomID, Reason: reason}))
}

func (n *HubNotifier) Transcript(t speechmodel.Transcript) {
	n.hub.ToRoom(t.RoomID, broadcast.NewEvent(EventTranscriptUpdate, t))
}
