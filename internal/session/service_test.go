package session_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koderpark/ani-relayer-be/internal/session"
)

type sentEvent struct {
	Name string
	Data any
}

// fakeSender captures fan-out instead of writing to a socket.
type fakeSender struct {
	mu     sync.Mutex
	events []sentEvent
	closed bool
	reason string
}

func (f *fakeSender) Send(event string, data any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{Name: event, Data: data})
	return true
}

func (f *fakeSender) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.reason = reason
}

func (f *fakeSender) named(event string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, ev := range f.events {
		if ev.Name == event {
			out = append(out, ev.Data)
		}
	}
	return out
}

func (f *fakeSender) last(event string) (any, bool) {
	evs := f.named(event)
	if len(evs) == 0 {
		return nil, false
	}
	return evs[len(evs)-1], true
}

type fixture struct {
	ids   *session.Identities
	rooms *session.Rooms
	svc   *session.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ids := session.NewIdentities()
	rooms := session.NewRooms(ids)
	fabric := session.NewFabric(log, ids)
	return &fixture{ids: ids, rooms: rooms, svc: session.NewService(log, ids, rooms, fabric, nil)}
}

func (fx *fixture) connectHost(t *testing.T, connID, username, roomName string, password *int) *fakeSender {
	t.Helper()
	s := &fakeSender{}
	err := fx.svc.OnConnect(context.Background(), connID, session.Handshake{
		Type: "host", Username: username, RoomName: roomName, Password: password,
	}, s)
	require.NoError(t, err)
	return s
}

func (fx *fixture) connectPeer(t *testing.T, connID, username string, roomID int, password *int) *fakeSender {
	t.Helper()
	s := &fakeSender{}
	err := fx.svc.OnConnect(context.Background(), connID, session.Handshake{
		Type: "peer", Username: username, RoomID: roomID, Password: password,
	}, s)
	require.NoError(t, err)
	return s
}

func (fx *fixture) roomOf(t *testing.T, connID string) session.Room {
	t.Helper()
	room, err := fx.rooms.ReadMine(connID)
	require.NoError(t, err)
	return room
}

func TestHostConnectEmitsUserAndRoomChanged(t *testing.T) {
	fx := newFixture(t)
	alice := fx.connectHost(t, "conn-a", "alice", "Room1", intp(1234))

	data, ok := alice.last("user")
	require.True(t, ok)
	user := data.(session.UserInfo)
	assert.Equal(t, "conn-a", user.ID)
	assert.Equal(t, "alice", user.Name)
	assert.True(t, user.IsHost)
	require.NotNil(t, user.RoomID)

	data, ok = alice.last("roomChanged")
	require.True(t, ok)
	info := data.(*session.RoomInfo)
	require.NotNil(t, info)
	assert.Equal(t, "Room1", info.Name)
	assert.Equal(t, "conn-a", info.Host)
	require.Len(t, info.User, 1)
	assert.Equal(t, session.MemberInfo{ID: "conn-a", Name: "alice", IsHost: true}, info.User[0])
}

func TestUnknownRoleRejected(t *testing.T) {
	fx := newFixture(t)
	s := &fakeSender{}

	err := fx.svc.OnConnect(context.Background(), "conn-x", session.Handshake{Type: "admin", Username: "mallory"}, s)
	assert.ErrorIs(t, err, session.ErrInvalidInputType)

	_, err = fx.ids.Get("conn-x")
	assert.ErrorIs(t, err, session.ErrUserNotFound)
}

func TestPeerWrongPasswordLeavesNothingBehind(t *testing.T) {
	fx := newFixture(t)
	alice := fx.connectHost(t, "conn-a", "alice", "Room1", intp(1234))
	room := fx.roomOf(t, "conn-a")

	s := &fakeSender{}
	err := fx.svc.OnConnect(context.Background(), "conn-b", session.Handshake{
		Type: "peer", Username: "bob", RoomID: room.ID, Password: intp(0),
	}, s)
	assert.ErrorIs(t, err, session.ErrWrongPassword)

	// The failed handshake must not leak an identity or grow the room.
	_, err = fx.ids.Get("conn-b")
	assert.ErrorIs(t, err, session.ErrUserNotFound)
	got, err := fx.rooms.Read(room.ID)
	require.NoError(t, err)
	assert.Len(t, got.MemberIDs(), 1)
	assert.Len(t, alice.named("roomChanged"), 1)
}

func TestPeerJoinBroadcastsNewSnapshot(t *testing.T) {
	fx := newFixture(t)
	alice := fx.connectHost(t, "conn-a", "alice", "Room1", intp(1234))
	room := fx.roomOf(t, "conn-a")

	fx.connectPeer(t, "conn-b", "bob", room.ID, intp(1234))

	data, ok := alice.last("roomChanged")
	require.True(t, ok)
	info := data.(*session.RoomInfo)
	require.NotNil(t, info)
	require.Len(t, info.User, 2)
	for _, m := range info.User {
		assert.Equal(t, m.ID == "conn-a", m.IsHost)
	}
}

func TestVideoFansOutExcludingHost(t *testing.T) {
	fx := newFixture(t)
	alice := fx.connectHost(t, "conn-a", "alice", "Room1", nil)
	room := fx.roomOf(t, "conn-a")
	bob := fx.connectPeer(t, "conn-b", "bob", room.ID, nil)

	v := session.Video{Title: "Frieren", Episode: "12", URL: "https://example.test/v", Speed: 1, Time: 120, IsPaused: false}
	require.NoError(t, fx.svc.Video("conn-a", v))

	data, ok := bob.last("videoChanged")
	require.True(t, ok)
	assert.Equal(t, v, data.(session.Video))
	assert.Empty(t, alice.named("videoChanged"), "author must not receive its own update")

	got, err := fx.rooms.Read(room.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Video)
	assert.Equal(t, 120.0, got.Video.Time)
}

func TestVideoFromPeerRejectedBeforeMutation(t *testing.T) {
	fx := newFixture(t)
	alice := fx.connectHost(t, "conn-a", "alice", "Room1", nil)
	room := fx.roomOf(t, "conn-a")
	fx.connectPeer(t, "conn-b", "bob", room.ID, nil)

	err := fx.svc.Video("conn-b", session.Video{URL: "https://example.test/evil"})
	assert.ErrorIs(t, err, session.ErrNotHost)

	assert.Empty(t, alice.named("videoChanged"))
	got, err := fx.rooms.Read(room.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Video)
}

func TestHostDisconnectTearsDownRoom(t *testing.T) {
	fx := newFixture(t)
	fx.connectHost(t, "conn-a", "alice", "Room1", nil)
	room := fx.roomOf(t, "conn-a")
	bob := fx.connectPeer(t, "conn-b", "bob", room.ID, nil)

	fx.svc.OnDisconnect(context.Background(), "conn-a")

	_, err := fx.rooms.Read(room.ID)
	assert.ErrorIs(t, err, session.ErrRoomNotFound)
	_, err = fx.ids.Get("conn-a")
	assert.ErrorIs(t, err, session.ErrUserNotFound)

	// The survivor's membership is cleared and it hears about the teardown.
	me, err := fx.ids.Get("conn-b")
	require.NoError(t, err)
	assert.Nil(t, me.RoomID)
	data, ok := bob.last("roomChanged")
	require.True(t, ok)
	assert.Nil(t, data.(*session.RoomInfo))
}

func TestPeerDisconnectShrinksRoom(t *testing.T) {
	fx := newFixture(t)
	alice := fx.connectHost(t, "conn-a", "alice", "Room1", nil)
	room := fx.roomOf(t, "conn-a")
	fx.connectPeer(t, "conn-b", "bob", room.ID, nil)

	fx.svc.OnDisconnect(context.Background(), "conn-b")

	got, err := fx.rooms.Read(room.ID)
	require.NoError(t, err, "peers leaving never destroys the room")
	assert.Equal(t, []string{"conn-a"}, got.MemberIDs())

	data, ok := alice.last("roomChanged")
	require.True(t, ok)
	info := data.(*session.RoomInfo)
	require.NotNil(t, info)
	require.Len(t, info.User, 1)
	assert.Equal(t, "alice", info.User[0].Name)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	fx.connectHost(t, "conn-a", "alice", "Room1", nil)

	fx.svc.OnDisconnect(context.Background(), "conn-a")
	fx.svc.OnDisconnect(context.Background(), "conn-a")
	fx.svc.OnDisconnect(context.Background(), "never-connected")
}

func TestChatReachesWholeRoom(t *testing.T) {
	fx := newFixture(t)
	alice := fx.connectHost(t, "conn-a", "alice", "Room1", nil)
	room := fx.roomOf(t, "conn-a")
	bob := fx.connectPeer(t, "conn-b", "bob", room.ID, nil)

	require.NoError(t, fx.svc.Chat("conn-b", "hello"))

	want := session.ChatMessage{SenderID: "conn-b", SenderName: "bob", Message: "hello"}
	for _, s := range []*fakeSender{alice, bob} {
		data, ok := s.last("chat")
		require.True(t, ok)
		assert.Equal(t, want, data.(session.ChatMessage))
	}
}

func TestKick(t *testing.T) {
	fx := newFixture(t)
	fx.connectHost(t, "conn-a", "alice", "Room1", nil)
	room := fx.roomOf(t, "conn-a")
	bob := fx.connectPeer(t, "conn-b", "bob", room.ID, nil)

	assert.ErrorIs(t, fx.svc.Kick("conn-b", "conn-a"), session.ErrNotHost)
	assert.ErrorIs(t, fx.svc.Kick("conn-a", "ghost"), session.ErrUserNotFound)

	require.NoError(t, fx.svc.Kick("conn-a", "conn-b"))
	assert.True(t, bob.closed)
	assert.Equal(t, "kicked", bob.reason)
}

// Every live room has a host that is one of its members, and every attached
// identity points at a room that exists.
func TestMembershipInvariants(t *testing.T) {
	fx := newFixture(t)
	fx.connectHost(t, "conn-a", "alice", "Room1", nil)
	roomA := fx.roomOf(t, "conn-a")
	fx.connectPeer(t, "conn-b", "bob", roomA.ID, nil)
	fx.connectHost(t, "conn-c", "carol", "Room2", intp(42))

	for _, connID := range []string{"conn-a", "conn-b", "conn-c"} {
		me, err := fx.ids.Get(connID)
		require.NoError(t, err)
		require.NotNil(t, me.RoomID)

		room, err := fx.rooms.Read(*me.RoomID)
		require.NoError(t, err)
		assert.Contains(t, room.MemberIDs(), connID)
		assert.Contains(t, room.MemberIDs(), room.HostID)
	}
}
