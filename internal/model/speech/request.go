package speech

// StartRequest opens a speech session for one room.
type StartRequest struct {
	RoomID  string `json:"roomId"`
	OwnerID string `json:"ownerId"`
	Role    string `json:"role,omitempty"`
	Mode    Mode   `json:"mode"`
}
