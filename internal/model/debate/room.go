package debate

// Room is the directory entry of one debate session.
type Room struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Participants int    `json:"participants"`
	Debaters     int    `json:"debaters"`
	Spectators   int    `json:"spectators"`
}

// Descriptor is the payload a client submits to create a room.
type Descriptor struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
