package debate

import (
	"github.com/zhouzirui/debate-arena/backend/internal/model/debate"
)

// findNode walks the tree in pre-order and returns the first node whose id
// matches. Each node has exactly one parent, so the walk terminates.
func findNode(list []*debate.Message, id string) *debate.Message {
	for _, msg := range list {
		if msg.ID == id {
			return msg
		}
		if found := findNode(msg.Replies, id); found != nil {
			return found
		}
	}
	return nil
}

// attachReply appends reply under the first node matching parentID.
func attachReply(list []*debate.Message, parentID string, reply *debate.Message) bool {
	parent := findNode(list, parentID)
	if parent == nil {
		return false
	}
	parent.Replies = append(parent.Replies, reply)
	return true
}

// countNodes returns the number of nodes in the tree.
func countNodes(list []*debate.Message) int {
	n := 0
	for _, msg := range list {
		n += 1 + countNodes(msg.Replies)
	}
	return n
}
