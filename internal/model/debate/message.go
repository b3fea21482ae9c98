package debate

// Message is one node of a room's argument tree. Replies share the shape.
type Message struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"`
	Text      string     `json:"text"`
	Timestamp int64      `json:"timestamp"`
	Votes     int        `json:"votes"`
	Replies   []*Message `json:"replies"`
}

// Clone returns a deep copy of the node and its subtree.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Replies = CloneTree(m.Replies)
	return &out
}

// CloneTree deep-copies a list of nodes. The result is never nil so it
// encodes as an empty JSON array.
func CloneTree(list []*Message) []*Message {
	out := make([]*Message, 0, len(list))
	for _, m := range list {
		out = append(out, m.Clone())
	}
	return out
}

// Snapshot is the broadcastable view of a room's tree.
type Snapshot struct {
	RoomID   string     `json:"roomId"`
	Revision uint64     `json:"revision"`
	Messages []*Message `json:"messages"`
}
