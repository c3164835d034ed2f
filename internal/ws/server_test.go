package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juhoohuj/triviacircle-backend/internal/registry"
	"github.com/juhoohuj/triviacircle-backend/internal/rooms"
)

type wsFrame struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

type testClient struct {
	cc   *ConnContext
	peer *mockPeer
}

func (c *testClient) frames(t *testing.T) []wsFrame {
	t.Helper()
	raw := c.peer.received()
	out := make([]wsFrame, 0, len(raw))
	for _, b := range raw {
		var f wsFrame
		require.NoError(t, json.Unmarshal(b, &f))
		out = append(out, f)
	}
	return out
}

func (c *testClient) eventNames(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, f := range c.frames(t) {
		names = append(names, f.Event)
	}
	return names
}

func (c *testClient) lastBody(t *testing.T, event string) json.RawMessage {
	t.Helper()
	var body json.RawMessage
	for _, f := range c.frames(t) {
		if f.Event == event {
			body = f.Body
		}
	}
	require.NotNil(t, body, "no %q frame received", event)
	return body
}

func newTestServer(deleteEmptyRooms bool) *WsServer {
	svc := rooms.NewRoomService(nil, deleteEmptyRooms)
	return NewWsServer(NewHub(), registry.New(), svc)
}

func (s *WsServer) testClient(connID string) *testClient {
	p := &mockPeer{}
	s.conns.Store(connID, peer(p))
	return &testClient{
		cc:   &ConnContext{ConnID: connID, Conn: p, Server: s},
		peer: p,
	}
}

func dispatch(s *WsServer, c *testClient, event, body string) error {
	return s.router.dispatch(context.Background(), c.cc, Envelope{
		Event: event,
		Body:  json.RawMessage(body),
	})
}

func createdRoomID(t *testing.T, c *testClient) string {
	t.Helper()
	var body RoomCreatedBody
	require.NoError(t, json.Unmarshal(c.lastBody(t, evRoomCreated), &body))
	require.NotEmpty(t, body.RoomID)
	return body.RoomID
}

func TestCreateRoomEvent(t *testing.T) {
	s := newTestServer(true)
	alice := s.testClient("conn-alice")

	require.NoError(t, dispatch(s, alice, evCreateRoom, `{"username":"alice"}`))

	roomID := createdRoomID(t, alice)

	b, ok := s.registry.Lookup("conn-alice")
	require.True(t, ok)
	assert.Equal(t, registry.Binding{RoomID: roomID, Username: "alice"}, b)

	snap, err := s.roomSvc.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, snap.Users, 1)
	assert.True(t, snap.Users[0].Captain)

	// The originator also gets the initial membership snapshot.
	assert.Contains(t, alice.eventNames(t), evRoomDetails)
}

func TestJoinRoomEvent(t *testing.T) {
	s := newTestServer(true)
	alice := s.testClient("conn-alice")
	bob := s.testClient("conn-bob")

	require.NoError(t, dispatch(s, alice, evCreateRoom, `{"username":"alice"}`))
	roomID := createdRoomID(t, alice)

	req := fmt.Sprintf(`{"roomId":%q,"username":"bob"}`, roomID)
	require.NoError(t, dispatch(s, bob, evJoinRoom, req))

	// Joiner gets the success snapshot with both members.
	var snap rooms.RoomDTO
	require.NoError(t, json.Unmarshal(bob.lastBody(t, evJoinRoomSuccess), &snap))
	assert.Equal(t, roomID, snap.RoomID)
	assert.Len(t, snap.Users, 2)

	// The room hears about it.
	aliceEvents := alice.eventNames(t)
	assert.Contains(t, aliceEvents, evUserJoined)
	assert.Contains(t, aliceEvents, evMessage)
	assert.Contains(t, aliceEvents, evRoomDetails)

	var joined UserJoinedBody
	require.NoError(t, json.Unmarshal(alice.lastBody(t, evUserJoined), &joined))
	assert.Equal(t, "bob", joined.Username)
}

func TestJoinRoomEvent_NotFound(t *testing.T) {
	s := newTestServer(true)
	bob := s.testClient("conn-bob")

	err := dispatch(s, bob, evJoinRoom, `{"roomId":"ghost","username":"bob"}`)
	require.ErrorIs(t, err, rooms.ErrRoomNotFound)

	// No state change, nothing delivered to anyone.
	_, bound := s.registry.Lookup("conn-bob")
	assert.False(t, bound)
	assert.Empty(t, bob.peer.received())
}

func TestLeaveRoomEvent(t *testing.T) {
	s := newTestServer(true)
	alice := s.testClient("conn-alice")
	bob := s.testClient("conn-bob")

	require.NoError(t, dispatch(s, alice, evCreateRoom, `{"username":"alice"}`))
	roomID := createdRoomID(t, alice)
	require.NoError(t, dispatch(s, bob, evJoinRoom,
		fmt.Sprintf(`{"roomId":%q,"username":"bob"}`, roomID)))

	require.NoError(t, dispatch(s, alice, evLeaveRoom, ``))

	_, bound := s.registry.Lookup("conn-alice")
	assert.False(t, bound)

	snap, err := s.roomSvc.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "bob", snap.Users[0].Username)

	var left UserLeftBody
	require.NoError(t, json.Unmarshal(bob.lastBody(t, evUserLeft), &left))
	assert.Equal(t, "alice", left.Username)

	// Last member out deletes the room under the enabled policy.
	require.NoError(t, dispatch(s, bob, evLeaveRoom, ``))
	_, err = s.roomSvc.GetRoom(context.Background(), roomID)
	assert.ErrorIs(t, err, rooms.ErrRoomNotFound)
}

func TestLeaveRoomEvent_Unbound(t *testing.T) {
	s := newTestServer(true)
	c := s.testClient("conn-1")

	err := dispatch(s, c, evLeaveRoom, ``)
	assert.ErrorIs(t, err, errNotInRoom)
}

func TestChatMessageEvent(t *testing.T) {
	s := newTestServer(true)
	alice := s.testClient("conn-alice")
	bob := s.testClient("conn-bob")

	require.NoError(t, dispatch(s, alice, evCreateRoom, `{"username":"alice"}`))
	roomID := createdRoomID(t, alice)
	require.NoError(t, dispatch(s, bob, evJoinRoom,
		fmt.Sprintf(`{"roomId":%q,"username":"bob"}`, roomID)))

	req := fmt.Sprintf(`{"roomId":%q,"username":"bob","message":"hi all"}`, roomID)
	require.NoError(t, dispatch(s, bob, evChatMessage, req))

	var msg MessageBody
	require.NoError(t, json.Unmarshal(alice.lastBody(t, evMessage), &msg))
	assert.Equal(t, "bob", msg.Username)
	assert.Equal(t, "hi all", msg.Text)

	// Sender receives it too; chat is broadcast to the whole room.
	require.NoError(t, json.Unmarshal(bob.lastBody(t, evMessage), &msg))
	assert.Equal(t, "hi all", msg.Text)
}

func TestDisconnectRunsLeavePath(t *testing.T) {
	s := newTestServer(true)
	alice := s.testClient("conn-alice")
	bob := s.testClient("conn-bob")

	require.NoError(t, dispatch(s, alice, evCreateRoom, `{"username":"alice"}`))
	roomID := createdRoomID(t, alice)
	require.NoError(t, dispatch(s, bob, evJoinRoom,
		fmt.Sprintf(`{"roomId":%q,"username":"bob"}`, roomID)))

	// Abrupt drop, no explicit leave.
	s.disconnect(context.Background(), bob.cc)

	_, bound := s.registry.Lookup("conn-bob")
	assert.False(t, bound, "binding must be gone after disconnect")

	snap, err := s.roomSvc.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "alice", snap.Users[0].Username)

	var left UserLeftBody
	require.NoError(t, json.Unmarshal(alice.lastBody(t, evUserLeft), &left))
	assert.Equal(t, "bob", left.Username)

	// Dead conn must not receive later fanout.
	framesBefore := len(bob.peer.received())
	require.NoError(t, dispatch(s, alice, evChatMessage,
		fmt.Sprintf(`{"roomId":%q,"username":"alice","message":"anyone?"}`, roomID)))
	assert.Len(t, bob.peer.received(), framesBefore)
}

func TestDisconnect_UnboundIsSilent(t *testing.T) {
	s := newTestServer(true)
	c := s.testClient("conn-1")

	s.disconnect(context.Background(), c.cc)
	assert.Empty(t, c.peer.received())
}

func TestDisconnect_AfterExplicitLeave(t *testing.T) {
	s := newTestServer(false)
	alice := s.testClient("conn-alice")

	require.NoError(t, dispatch(s, alice, evCreateRoom, `{"username":"alice"}`))
	roomID := createdRoomID(t, alice)

	require.NoError(t, dispatch(s, alice, evLeaveRoom, ``))
	// Reader teardown fires afterwards; must be a clean no-op.
	s.disconnect(context.Background(), alice.cc)

	snap, err := s.roomSvc.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Empty(t, snap.Users)
}

func TestJoinSecondRoom_AbandonsFirst(t *testing.T) {
	s := newTestServer(true)
	alice := s.testClient("conn-alice")
	mate := s.testClient("conn-mate")
	host2 := s.testClient("conn-host2")

	require.NoError(t, dispatch(s, alice, evCreateRoom, `{"username":"alice"}`))
	room1 := createdRoomID(t, alice)
	require.NoError(t, dispatch(s, mate, evJoinRoom,
		fmt.Sprintf(`{"roomId":%q,"username":"mate"}`, room1)))

	require.NoError(t, dispatch(s, host2, evCreateRoom, `{"username":"host2"}`))
	room2 := createdRoomID(t, host2)

	require.NoError(t, dispatch(s, alice, evJoinRoom,
		fmt.Sprintf(`{"roomId":%q,"username":"alice"}`, room2)))

	b, ok := s.registry.Lookup("conn-alice")
	require.True(t, ok)
	assert.Equal(t, room2, b.RoomID)

	snap, err := s.roomSvc.GetRoom(context.Background(), room1)
	require.NoError(t, err)
	require.Len(t, snap.Users, 1, "alice must be removed from the first room")

	var left UserLeftBody
	require.NoError(t, json.Unmarshal(mate.lastBody(t, evUserLeft), &left))
	assert.Equal(t, "alice", left.Username)
}

func TestSameUsernameRejoin_EvictsOldBinding(t *testing.T) {
	s := newTestServer(true)
	host := s.testClient("conn-host")
	first := s.testClient("conn-1")
	second := s.testClient("conn-2")

	require.NoError(t, dispatch(s, host, evCreateRoom, `{"username":"host"}`))
	roomID := createdRoomID(t, host)

	join := fmt.Sprintf(`{"roomId":%q,"username":"carol"}`, roomID)
	require.NoError(t, dispatch(s, first, evJoinRoom, join))
	require.NoError(t, dispatch(s, second, evJoinRoom, join))

	// Exactly one carol, owned by the last writer; the loser holds no binding.
	snap, err := s.roomSvc.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	carols := 0
	for _, u := range snap.Users {
		if u.Username == "carol" {
			carols++
			assert.Equal(t, "conn-2", u.ConnectionID)
		}
	}
	assert.Equal(t, 1, carols)

	_, ok := s.registry.Lookup("conn-1")
	assert.False(t, ok, "displaced binding must be removed")
	b, ok := s.registry.Lookup("conn-2")
	require.True(t, ok)
	assert.Equal(t, "carol", b.Username)

	// The loser's disconnect must not remove the winner's member.
	s.disconnect(context.Background(), first.cc)
	snap, err = s.roomSvc.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Len(t, snap.Users, 2)
}

// gatedRoomService parks one connection's member write so interleavings
// around a same-username join can be pinned down deterministically.
type gatedRoomService struct {
	rooms.IRoomService
	holdConnID string
	entered    chan struct{}
	release    chan struct{}
	once       sync.Once
}

func (g *gatedRoomService) JoinRoom(ctx context.Context, roomID, username, connectionID string) (rooms.RoomDTO, string, error) {
	if connectionID == g.holdConnID {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.IRoomService.JoinRoom(ctx, roomID, username, connectionID)
}

func TestSameUsernameJoinRace_OneBindingSurvives(t *testing.T) {
	gate := &gatedRoomService{
		IRoomService: rooms.NewRoomService(nil, true),
		holdConnID:   "conn-1",
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	s := NewWsServer(NewHub(), registry.New(), gate)

	host := s.testClient("conn-host")
	first := s.testClient("conn-1")
	second := s.testClient("conn-2")

	require.NoError(t, dispatch(s, host, evCreateRoom, `{"username":"host"}`))
	roomID := createdRoomID(t, host)
	join := fmt.Sprintf(`{"roomId":%q,"username":"carol"}`, roomID)

	// conn-1 is already bound but parked before its member write lands.
	done := make(chan error, 1)
	go func() { done <- dispatch(s, first, evJoinRoom, join) }()
	<-gate.entered

	// conn-2 joins to completion in the gap, then conn-1's write lands last.
	require.NoError(t, dispatch(s, second, evJoinRoom, join))
	close(gate.release)
	require.NoError(t, <-done)

	// The later write owns the member; the earlier writer was evicted.
	snap, err := s.roomSvc.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, snap.Users, 2)
	for _, u := range snap.Users {
		if u.Username == "carol" {
			assert.Equal(t, "conn-1", u.ConnectionID)
		}
	}

	_, bound1 := s.registry.Lookup("conn-1")
	assert.True(t, bound1, "the winning writer keeps its binding")
	_, bound2 := s.registry.Lookup("conn-2")
	assert.False(t, bound2, "carol must not be bound to two connections")

	// The evicted connection's teardown must not touch the live member.
	s.disconnect(context.Background(), second.cc)
	snap, err = s.roomSvc.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Len(t, snap.Users, 2, "the winner's member survives the loser's disconnect")
}

func TestPlayerUpdateEvent(t *testing.T) {
	s := newTestServer(true)
	alice := s.testClient("conn-alice")

	require.NoError(t, dispatch(s, alice, evCreateRoom, `{"username":"alice"}`))
	roomID := createdRoomID(t, alice)

	require.NoError(t, dispatch(s, alice, evPlayerUpdate, `{"score":7,"answerOrder":1}`))

	snap, err := s.roomSvc.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Users[0].Score)
	assert.Equal(t, 1, snap.Users[0].AnswerOrder)

	err = dispatch(s, s.testClient("conn-x"), evPlayerUpdate, `{"score":1}`)
	assert.ErrorIs(t, err, errNotInRoom)
}

func TestGameEventPassThrough(t *testing.T) {
	s := newTestServer(true)
	alice := s.testClient("conn-alice")
	bob := s.testClient("conn-bob")

	require.NoError(t, dispatch(s, alice, evCreateRoom, `{"username":"alice"}`))
	roomID := createdRoomID(t, alice)
	require.NoError(t, dispatch(s, bob, evJoinRoom,
		fmt.Sprintf(`{"roomId":%q,"username":"bob"}`, roomID)))

	req := fmt.Sprintf(`{"roomId":%q,"name":"questionRevealed","payload":{"question":"q1"}}`, roomID)
	require.NoError(t, dispatch(s, bob, evGameEvent, req))

	body := alice.lastBody(t, "questionRevealed")
	assert.JSONEq(t, `{"question":"q1"}`, string(body))
}
