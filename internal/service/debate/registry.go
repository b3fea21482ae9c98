package debate

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/debate-arena/backend/internal/model/debate"
)

var (
	ErrInvalidRoom   = errors.New("room title is required")
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomNotFound  = errors.New("room not found")
	ErrInvalidDelta  = errors.New("vote delta must be +1 or -1")
	ErrEmptyIdentity = errors.New("participant id is required")
)

// JoinResult is what a joining participant receives.
type JoinResult struct {
	Role     debate.Role
	Snapshot debate.Snapshot
}

// Registry owns the room directory and every room aggregate. Room state is
// only reachable through its methods.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	order []string

	newID func() string
	now   func() time.Time
}

// NewRegistry bootstraps an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*roomState),
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// lookup returns the room locked, or ErrRoomNotFound. Callers must unlock.
func (r *Registry) lookup(roomID string) (*roomState, error) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	room.mu.Lock()
	if room.deleted {
		room.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return room, nil
}

// Create registers a room with an empty tree, vote ledger and membership.
func (r *Registry) Create(desc debate.Descriptor) (debate.Room, error) {
	title := strings.TrimSpace(desc.Title)
	if title == "" {
		return debate.Room{}, ErrInvalidRoom
	}

	id := strings.TrimSpace(desc.ID)
	if id == "" {
		id = r.newID()
	}

	info := debate.Room{ID: id, Title: title, Description: desc.Description}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; ok {
		return debate.Room{}, fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	r.rooms[id] = newRoomState(info)
	r.order = append(r.order, id)

	log.Info().Str("module", "service.debate").Str("room", id).Str("title", title).Msg("room created")
	return info, nil
}

// Exists reports whether the room is registered.
func (r *Registry) Exists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Directory returns the rooms in creation order with current counters.
func (r *Registry) Directory() []debate.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]debate.Room, 0, len(r.order))
	for _, id := range r.order {
		room := r.rooms[id]
		room.mu.Lock()
		out = append(out, room.info)
		room.mu.Unlock()
	}
	return out
}

// Join adds the participant to the room and assigns a role. Joining a room
// the participant already belongs to returns its current role.
func (r *Registry) Join(roomID, participantID string) (JoinResult, error) {
	if participantID == "" {
		return JoinResult{}, ErrEmptyIdentity
	}

	room, err := r.lookup(roomID)
	if err != nil {
		return JoinResult{}, err
	}
	defer room.mu.Unlock()

	role := room.assignRole(participantID)
	log.Info().Str("module", "service.debate").Str("room", roomID).Str("participant", participantID).Str("role", string(role)).Msg("participant joined")

	return JoinResult{Role: role, Snapshot: room.snapshot()}, nil
}

// Role returns the participant's role in the room.
func (r *Registry) Role(roomID, participantID string) (debate.Role, bool) {
	room, err := r.lookup(roomID)
	if err != nil {
		return "", false
	}
	defer room.mu.Unlock()

	role, ok := room.members[participantID]
	return role, ok
}

// Leave removes the participant from the room. Absence is not an error; the
// bool reports whether membership changed.
func (r *Registry) Leave(roomID, participantID string) (bool, error) {
	room, err := r.lookup(roomID)
	if err != nil {
		return false, err
	}
	defer room.mu.Unlock()

	changed := room.removeMember(participantID)
	if changed {
		log.Info().Str("module", "service.debate").Str("room", roomID).Str("participant", participantID).Msg("participant left")
	}
	return changed, nil
}

// LeaveAll removes the participant from every room and returns the ids of the
// rooms whose membership changed.
func (r *Registry) LeaveAll(participantID string) []string {
	r.mu.RLock()
	ids := append([]string(nil), r.order...)
	r.mu.RUnlock()

	var changed []string
	for _, id := range ids {
		ok, err := r.Leave(id, participantID)
		if err == nil && ok {
			changed = append(changed, id)
		}
	}
	return changed
}

// Delete removes the room and everything that hangs off it. The room lock is
// taken under the registry lock so no other room operation can interleave.
func (r *Registry) Delete(roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	room.mu.Lock()
	room.purge()
	room.mu.Unlock()

	delete(r.rooms, roomID)
	for i, id := range r.order {
		if id == roomID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	log.Info().Str("module", "service.debate").Str("room", roomID).Msg("room deleted")
	return nil
}

// Messages returns the room's current tree.
func (r *Registry) Messages(roomID string) (debate.Snapshot, error) {
	room, err := r.lookup(roomID)
	if err != nil {
		return debate.Snapshot{}, err
	}
	defer room.mu.Unlock()
	return room.snapshot(), nil
}

// SubmitMessage appends a top-level argument to the room.
func (r *Registry) SubmitMessage(roomID string, msg debate.Message) (debate.Snapshot, error) {
	room, err := r.lookup(roomID)
	if err != nil {
		return debate.Snapshot{}, err
	}
	defer room.mu.Unlock()

	node := r.normalise(room, msg)
	room.messages = append(room.messages, node)
	room.revision++

	log.Debug().Str("module", "service.debate").Str("room", roomID).Str("message", node.ID).Int("nodes", countNodes(room.messages)).Msg("message appended")
	return room.snapshot(), nil
}

// SubmitReply attaches reply under the first node matching parentID in
// pre-order. An unknown parent leaves the tree unchanged; the snapshot is
// still returned so callers can broadcast it.
func (r *Registry) SubmitReply(roomID, parentID string, reply debate.Message) (debate.Snapshot, bool, error) {
	room, err := r.lookup(roomID)
	if err != nil {
		return debate.Snapshot{}, false, err
	}
	defer room.mu.Unlock()

	if findNode(room.messages, parentID) == nil {
		log.Debug().Str("module", "service.debate").Str("room", roomID).Str("parent", parentID).Msg("reply parent not found")
		return room.snapshot(), false, nil
	}

	node := r.normalise(room, reply)
	attachReply(room.messages, parentID, node)
	room.revision++
	return room.snapshot(), true, nil
}

// CastVote applies an idempotent upvote (+1) or its undo (-1). The bool
// reports whether the ledger changed.
func (r *Registry) CastVote(roomID, messageID, voterID string, delta int) (debate.Snapshot, bool, error) {
	room, err := r.lookup(roomID)
	if err != nil {
		return debate.Snapshot{}, false, err
	}
	defer room.mu.Unlock()

	if delta != 1 && delta != -1 {
		return room.snapshot(), false, ErrInvalidDelta
	}
	if voterID == "" {
		return room.snapshot(), false, ErrEmptyIdentity
	}

	applied := room.applyVote(messageID, voterID, delta)
	if applied {
		room.revision++
	}
	return room.snapshot(), applied, nil
}

// normalise copies a client supplied node into a fresh tree node owned by the
// room. Client votes and replies are discarded.
func (r *Registry) normalise(room *roomState, msg debate.Message) *debate.Message {
	node := &debate.Message{
		ID:        room.claimID(strings.TrimSpace(msg.ID), r.newID),
		Author:    msg.Author,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		Replies:   make([]*debate.Message, 0),
	}
	if node.Timestamp == 0 {
		node.Timestamp = r.now().UnixMilli()
	}
	return node
}
