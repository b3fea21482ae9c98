package debate

import (
	"sync"

	"github.com/zhouzirui/debate-arena/backend/internal/model/debate"
)

// roomState is the aggregate owned by the Registry for one room. Every field
// below mu is guarded by it.
type roomState struct {
	mu sync.Mutex

	info     debate.Room
	deleted  bool
	revision uint64

	members  map[string]debate.Role
	debaterA string
	debaterB string

	messages []*debate.Message
	ids      map[string]struct{}
	// votes maps message id to the set of voters with a counted upvote.
	votes map[string]map[string]struct{}
}

func newRoomState(info debate.Room) *roomState {
	return &roomState{
		info:     info,
		members:  make(map[string]debate.Role),
		messages: make([]*debate.Message, 0, 16),
		ids:      make(map[string]struct{}),
		votes:    make(map[string]map[string]struct{}),
	}
}

// assignRole gives the participant the first free debater slot, or the
// spectator role once both slots are held.
func (r *roomState) assignRole(participantID string) debate.Role {
	if role, ok := r.members[participantID]; ok {
		return role
	}

	role := debate.RoleSpectator
	switch {
	case r.debaterA == "":
		r.debaterA = participantID
		role = debate.RoleDebaterA
	case r.debaterB == "":
		r.debaterB = participantID
		role = debate.RoleDebaterB
	}
	r.members[participantID] = role
	r.recount()
	return role
}

// removeMember drops the participant from every membership set and frees
// its debater slot. It reports whether anything changed.
func (r *roomState) removeMember(participantID string) bool {
	if _, ok := r.members[participantID]; !ok {
		return false
	}
	delete(r.members, participantID)
	if r.debaterA == participantID {
		r.debaterA = ""
	}
	if r.debaterB == participantID {
		r.debaterB = ""
	}
	r.recount()
	return true
}

func (r *roomState) recount() {
	debaters := 0
	if r.debaterA != "" {
		debaters++
	}
	if r.debaterB != "" {
		debaters++
	}
	r.info.Participants = len(r.members)
	r.info.Debaters = debaters
	r.info.Spectators = len(r.members) - debaters
}

// claimID registers a node id, replacing it when empty or already taken.
func (r *roomState) claimID(id string, gen func() string) string {
	if _, taken := r.ids[id]; id == "" || taken {
		id = gen()
	}
	r.ids[id] = struct{}{}
	return id
}

// applyVote mutates the ledger and the node count together. It reports
// whether a mutation happened.
func (r *roomState) applyVote(messageID, voterID string, delta int) bool {
	node := findNode(r.messages, messageID)
	if node == nil {
		return false
	}

	voters := r.votes[messageID]
	_, counted := voters[voterID]

	switch {
	case delta == 1 && !counted:
		if voters == nil {
			voters = make(map[string]struct{})
			r.votes[messageID] = voters
		}
		voters[voterID] = struct{}{}
		node.Votes++
		return true
	case delta == -1 && counted:
		delete(voters, voterID)
		if len(voters) == 0 {
			delete(r.votes, messageID)
		}
		node.Votes--
		return true
	default:
		return false
	}
}

func (r *roomState) snapshot() debate.Snapshot {
	return debate.Snapshot{
		RoomID:   r.info.ID,
		Revision: r.revision,
		Messages: debate.CloneTree(r.messages),
	}
}

// purge drops all dependent state. Callers hold mu.
func (r *roomState) purge() {
	r.deleted = true
	r.members = make(map[string]debate.Role)
	r.debaterA, r.debaterB = "", ""
	r.messages = nil
	r.ids = make(map[string]struct{})
	r.votes = make(map[string]map[string]struct{})
	r.recount()
}
