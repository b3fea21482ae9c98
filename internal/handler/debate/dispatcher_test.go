package debate

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	debatemodel "github.com/zhouzirui/debate-arena/backend/internal/model/debate"
	speechmodel "github.com/zhouzirui/debate-arena/backend/internal/model/speech"
	"github.com/zhouzirui/debate-arena/backend/internal/service/broadcast"
	debateservice "github.com/zhouzirui/debate-arena/backend/internal/service/debate"
	"github.com/zhouzirui/debate-arena/backend/internal/service/speech"
)

type fakeBridge struct {
	mu       sync.Mutex
	sessions map[string]string // room -> owner
	starts   []speechmodel.StartRequest
	relayed  map[string][][]float64
	binary   map[string][][]byte
	stopped  []string
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		sessions: make(map[string]string),
		relayed:  make(map[string][][]float64),
		binary:   make(map[string][][]byte),
	}
}

func (b *fakeBridge) Start(_ context.Context, req speechmodel.StartRequest, guard func() bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if guard != nil && !guard() {
		return speech.ErrRoomUnavailable
	}
	if _, ok := b.sessions[req.RoomID]; ok {
		return speech.ErrDuplicateSession
	}
	b.sessions[req.RoomID] = req.OwnerID
	b.starts = append(b.starts, req)
	return nil
}

func (b *fakeBridge) Relay(roomID string, samples []float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[roomID]; !ok {
		return speech.ErrSessionNotFound
	}
	b.relayed[roomID] = append(b.relayed[roomID], samples)
	return nil
}

func (b *fakeBridge) RelayOwned(ownerID string, pcm []byte) error {
	if len(pcm)%2 != 0 {
		return speech.ErrOddFrame
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.binary[ownerID] = append(b.binary[ownerID], pcm)
	return nil
}

func (b *fakeBridge) Stop(roomID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[roomID]; !ok {
		return speech.ErrSessionNotFound
	}
	delete(b.sessions, roomID)
	b.stopped = append(b.stopped, roomID)
	return nil
}

func (b *fakeBridge) StopOwnedBy(ownerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for room, owner := range b.sessions {
		if owner == ownerID {
			delete(b.sessions, room)
			b.stopped = append(b.stopped, room)
			n++
		}
	}
	return n
}

type fixture struct {
	registry   *debateservice.Registry
	hub        *broadcast.Hub
	bridge     *fakeBridge
	dispatcher *Dispatcher
	clients    map[string]*broadcast.Client
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	f := &fixture{
		registry: debateservice.NewRegistry(),
		hub:      broadcast.NewHub(),
		bridge:   newFakeBridge(),
		clients:  make(map[string]*broadcast.Client),
	}
	f.dispatcher = NewDispatcher(f.registry, f.hub, f.bridge, nil)
	for _, id := range ids {
		c := broadcast.NewClient(id, 64)
		f.hub.Register(c)
		f.clients[id] = c
	}
	return f
}

func (f *fixture) send(pid, eventType string, data any) {
	raw, _ := json.Marshal(map[string]any{"type": eventType, "data": data})
	f.dispatcher.Handle(context.Background(), pid, raw)
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (f *fixture) drain(t *testing.T, pid string) []received {
	t.Helper()
	var out []received
	for {
		select {
		case frame := <-f.clients[pid].Frames():
			var r received
			if err := json.Unmarshal(frame, &r); err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			out = append(out, r)
		default:
			return out
		}
	}
}

func types(events []received) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func last(t *testing.T, events []received, eventType string) received {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			return events[i]
		}
	}
	t.Fatalf("no %s in %v", eventType, types(events))
	return received{}
}

func snapshotOf(t *testing.T, r received) debatemodel.Snapshot {
	t.Helper()
	var snap debatemodel.Snapshot
	if err := json.Unmarshal(r.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestCreateBroadcastsDirectoryToEveryone(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "Cats vs dogs"})

	for _, id := range []string{"a", "b"} {
		events := f.drain(t, id)
		if len(events) != 1 || events[0].Type != EventDebatesUpdate {
			t.Fatalf("client %s: unexpected events %v", id, types(events))
		}
		var rooms []debatemodel.Room
		if err := json.Unmarshal(events[0].Data, &rooms); err != nil {
			t.Fatalf("decode directory: %v", err)
		}
		if len(rooms) != 1 || rooms[0].ID != "r1" || rooms[0].Title != "Cats vs dogs" {
			t.Fatalf("unexpected directory %+v", rooms)
		}
	}

	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "again"})
	if events := f.drain(t, "a"); len(events) != 0 {
		t.Fatalf("duplicate create should not broadcast, got %v", types(events))
	}
}

func TestJoinAssignsRoleAndSendsTree(t *testing.T) {
	f := newFixture(t, "a", "b", "c", "watcher")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.drain(t, "a")
	f.drain(t, "watcher")

	want := map[string]debatemodel.Role{"a": debatemodel.RoleDebaterA, "b": debatemodel.RoleDebaterB, "c": debatemodel.RoleSpectator}
	for _, id := range []string{"a", "b", "c"} {
		// bare string and object payloads are both accepted
		var payload any = "r1"
		if id == "b" {
			payload = map[string]string{"debateId": "r1"}
		}
		f.send(id, EventJoinDebate, payload)

		events := f.drain(t, id)
		got := types(events)
		if len(got) < 3 || got[0] != EventRoleAssigned || got[1] != EventMessagesUpdate {
			t.Fatalf("client %s: unexpected events %v", id, got)
		}
		var role roleAssigned
		if err := json.Unmarshal(events[0].Data, &role); err != nil {
			t.Fatalf("decode role: %v", err)
		}
		if role.Role != want[id] || role.RoomID != "r1" {
			t.Fatalf("client %s: expected role %s, got %+v", id, want[id], role)
		}
	}

	dir := last(t, f.drain(t, "watcher"), EventDebatesUpdate)
	var rooms []debatemodel.Room
	_ = json.Unmarshal(dir.Data, &rooms)
	if rooms[0].Participants != 3 || rooms[0].Debaters != 2 || rooms[0].Spectators != 1 {
		t.Fatalf("unexpected counters %+v", rooms[0])
	}
}

func TestJoinUnknownRoomIsIgnored(t *testing.T) {
	f := newFixture(t, "a")
	f.send("a", EventJoinDebate, "nope")
	if events := f.drain(t, "a"); len(events) != 0 {
		t.Fatalf("expected no events, got %v", types(events))
	}
}

func TestMessagesReachOnlyRoomMembers(t *testing.T) {
	f := newFixture(t, "a", "outsider")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.send("a", EventJoinDebate, "r1")
	f.drain(t, "a")
	f.drain(t, "outsider")

	f.send("a", EventSendMessage, map[string]any{
		"roomId":  "r1",
		"message": map[string]any{"id": "m1", "author": "a", "text": "opening", "votes": 99},
	})

	snap := snapshotOf(t, last(t, f.drain(t, "a"), EventMessagesUpdate))
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "m1" || snap.Messages[0].Votes != 0 {
		t.Fatalf("unexpected tree %+v", snap.Messages)
	}
	if snap.Revision == 0 {
		t.Fatal("expected revision to advance")
	}
	if events := f.drain(t, "outsider"); len(events) != 0 {
		t.Fatalf("outsider received %v", types(events))
	}
}

func TestUnmatchedReplyStillBroadcasts(t *testing.T) {
	f := newFixture(t, "a")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.send("a", EventJoinDebate, "r1")
	f.send("a", EventSendMessage, map[string]any{"roomId": "r1", "message": map[string]any{"id": "m1", "text": "x"}})
	before := snapshotOf(t, last(t, f.drain(t, "a"), EventMessagesUpdate))

	f.send("a", EventSendReply, map[string]any{"roomId": "r1", "parentId": "missing", "reply": map[string]any{"id": "r", "text": "y"}})

	events := f.drain(t, "a")
	if len(events) != 1 {
		t.Fatalf("expected one broadcast, got %v", types(events))
	}
	after := snapshotOf(t, events[0])
	if after.Revision != before.Revision || len(after.Messages) != 1 || len(after.Messages[0].Replies) != 0 {
		t.Fatalf("tree changed: %+v", after)
	}

	f.send("a", EventSendReply, map[string]any{"roomId": "r1", "parentId": "m1", "reply": map[string]any{"id": "r", "text": "y"}})
	nested := snapshotOf(t, last(t, f.drain(t, "a"), EventMessagesUpdate))
	if len(nested.Messages[0].Replies) != 1 || nested.Messages[0].Replies[0].ID != "r" {
		t.Fatalf("reply not attached: %+v", nested.Messages[0])
	}
}

func TestVoteBroadcastsAfterEveryCall(t *testing.T) {
	f := newFixture(t, "a")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.send("a", EventJoinDebate, "r1")
	f.send("a", EventSendMessage, map[string]any{"roomId": "r1", "message": map[string]any{"id": "m1", "text": "x"}})
	f.drain(t, "a")

	steps := []struct {
		voter string
		delta int
		want  int
	}{
		{"u1", 1, 1},
		{"u1", 1, 1},
		{"u2", 1, 2},
		{"u1", -1, 1},
		{"u3", -1, 1},
		{"u2", 5, 1},
	}
	for i, step := range steps {
		f.send("a", EventVoteMessage, map[string]any{"roomId": "r1", "messageId": "m1", "userId": step.voter, "delta": step.delta})
		events := f.drain(t, "a")
		if len(events) != 1 {
			t.Fatalf("step %d: expected one broadcast, got %v", i, types(events))
		}
		if got := snapshotOf(t, events[0]).Messages[0].Votes; got != step.want {
			t.Fatalf("step %d: expected %d votes, got %d", i, step.want, got)
		}
	}
}

func TestDeleteStopsSpeechAndForgetsRoom(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.send("a", EventJoinDebate, "r1")
	f.send("a", EventStartSpeech, map[string]string{"roomId": "r1", "mode": "debate"})
	f.drain(t, "a")
	f.drain(t, "b")

	f.send("b", EventDeleteDebate, "r1")

	if f.registry.Exists("r1") {
		t.Fatal("room still registered")
	}
	if len(f.bridge.stopped) != 1 || f.bridge.stopped[0] != "r1" {
		t.Fatalf("expected bridge of r1 stopped, got %v", f.bridge.stopped)
	}
	if f.hub.RoomSize("r1") != 0 {
		t.Fatal("room subscriptions survived delete")
	}
	var rooms []debatemodel.Room
	_ = json.Unmarshal(last(t, f.drain(t, "b"), EventDebatesUpdate).Data, &rooms)
	if len(rooms) != 0 {
		t.Fatalf("deleted room still listed: %+v", rooms)
	}
	f.drain(t, "a")

	f.send("a", EventSendMessage, map[string]any{"roomId": "r1", "message": map[string]any{"text": "late"}})
	if events := f.drain(t, "a"); len(events) != 0 {
		t.Fatalf("message to deleted room broadcast %v", types(events))
	}
}

func TestStartSpeechPassesRoleAndMode(t *testing.T) {
	f := newFixture(t, "a")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.send("a", EventJoinDebate, "r1")
	f.drain(t, "a")

	f.send("a", EventStartSpeech, map[string]string{"roomId": "r1", "mode": "debate"})
	if len(f.bridge.starts) != 1 {
		t.Fatalf("expected one start, got %d", len(f.bridge.starts))
	}
	req := f.bridge.starts[0]
	if req.OwnerID != "a" || req.Role != string(debatemodel.RoleDebaterA) || req.Mode != speechmodel.ModeDebate {
		t.Fatalf("unexpected start request %+v", req)
	}

	f.send("a", EventStartSpeech, map[string]string{"roomId": "r1"})
	if got := types(f.drain(t, "a")); len(got) != 1 || got[0] != EventSpeechError {
		t.Fatalf("duplicate start should answer speech_error, got %v", got)
	}

	f.send("a", EventStartSpeech, map[string]string{"roomId": "missing"})
	if got := types(f.drain(t, "a")); len(got) != 1 || got[0] != EventSpeechError {
		t.Fatalf("unknown room should answer speech_error, got %v", got)
	}

	f.send("a", EventStartSpeech, map[string]string{"roomId": "r1", "mode": "karaoke"})
	if got := types(f.drain(t, "a")); len(got) != 1 || got[0] != EventSpeechError {
		t.Fatalf("unknown mode should answer speech_error, got %v", got)
	}
}

func TestAudioAndBinaryRelay(t *testing.T) {
	f := newFixture(t, "a")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.send("a", EventStartSpeech, map[string]string{"roomId": "r1"})
	f.dispatcher.limiter = NewRateLimiter(1, time.Hour)
	f.send("a", EventPing, nil)
	f.send("a", EventPing, nil)
	if got := types(f.drain(t, "a")); len(got) != 2 || got[1] != EventPong {
		t.Fatalf("expected a single pong after the limit, got %v", got)
	}

	// rate limit is spent, audio is exempt
	for i := 0; i < 3; i++ {
		f.send("a", EventSendAudio, map[string]any{"roomId": "r1", "samples": []float64{1, 2}})
	}
	if len(f.bridge.relayed["r1"]) != 3 {
		t.Fatalf("expected 3 relayed chunks, got %d", len(f.bridge.relayed["r1"]))
	}

	f.dispatcher.RelayBinary("a", []byte{1, 0, 2, 0})
	f.dispatcher.RelayBinary("a", []byte{1, 0, 2})
	if len(f.bridge.binary["a"]) != 1 {
		t.Fatalf("expected one binary frame relayed, got %d", len(f.bridge.binary["a"]))
	}
}

func TestBroadcastTranscriptStampsTime(t *testing.T) {
	f := newFixture(t, "a")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.send("a", EventJoinDebate, "r1")
	f.drain(t, "a")

	f.send("a", EventBroadcastTranscript, map[string]any{"debateId": "r1", "text": "hello", "speaker": "A"})
	events := f.drain(t, "a")
	if len(events) != 1 || events[0].Type != EventTranscriptUpdate {
		t.Fatalf("unexpected events %v", types(events))
	}
	var tr speechmodel.Transcript
	_ = json.Unmarshal(events[0].Data, &tr)
	if tr.Text != "hello" || tr.Speaker != "A" || tr.Timestamp == 0 {
		t.Fatalf("unexpected transcript %+v", tr)
	}
}

func TestDisconnectLeavesRoomsAndStopsOwnedBridges(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.send("a", EventJoinDebate, "r1")
	f.send("b", EventJoinDebate, "r1")
	f.send("a", EventStartSpeech, map[string]string{"roomId": "r1"})
	f.drain(t, "b")

	f.dispatcher.Disconnect("a")

	if _, ok := f.registry.Role("r1", "a"); ok {
		t.Fatal("participant still a member")
	}
	if len(f.bridge.sessions) != 0 {
		t.Fatalf("owned bridge survived disconnect: %v", f.bridge.sessions)
	}
	var rooms []debatemodel.Room
	_ = json.Unmarshal(last(t, f.drain(t, "b"), EventDebatesUpdate).Data, &rooms)
	if rooms[0].Participants != 1 {
		t.Fatalf("expected one participant left, got %+v", rooms[0])
	}

	// the freed slot goes to the next joiner
	c := broadcast.NewClient("c", 8)
	f.hub.Register(c)
	f.clients["c"] = c
	f.send("c", EventJoinDebate, "r1")
	var role roleAssigned
	_ = json.Unmarshal(f.drain(t, "c")[0].Data, &role)
	if role.Role != debatemodel.RoleDebaterA {
		t.Fatalf("expected freed debater_A slot, got %s", role.Role)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	f := newFixture(t, "a")
	f.dispatcher.Handle(context.Background(), "a", []byte("{not json"))
	f.dispatcher.Handle(context.Background(), "a", []byte(`{"data":{}}`))
	f.send("a", EventSendMessage, "not an object")
	f.send("a", "unknown_event", nil)
	if events := f.drain(t, "a"); len(events) != 0 {
		t.Fatalf("expected no events, got %v", types(events))
	}

	f.send("a", EventPing, nil)
	if got := types(f.drain(t, "a")); len(got) != 1 || got[0] != EventPong {
		t.Fatalf("expected pong, got %v", got)
	}
}

func TestDisabledSpeechAnswersError(t *testing.T) {
	f := newFixture(t, "a")
	f.dispatcher.bridges = nil
	f.send("a", EventCreateDebate, map[string]string{"id": "r1", "title": "t"})
	f.drain(t, "a")

	f.send("a", EventStartSpeech, map[string]string{"roomId": "r1"})
	if got := types(f.drain(t, "a")); len(got) != 1 || got[0] != EventSpeechError {
		t.Fatalf("expected speech_error, got %v", got)
	}
	f.dispatcher.Disconnect("a")
}
