package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koderpark/ani-relayer-be/internal/session"
)

func intp(v int) *int { return &v }

func newRegistries(t *testing.T) (*session.Identities, *session.Rooms) {
	t.Helper()
	ids := session.NewIdentities()
	return ids, session.NewRooms(ids)
}

func mustIdentity(t *testing.T, ids *session.Identities, connID, name string) {
	t.Helper()
	_, err := ids.Create(connID, name)
	require.NoError(t, err)
}

func TestRoomCreateReadRoundTrip(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "host-1", "alice")

	created, err := rooms.Create("host-1", "Room1", intp(1234))
	require.NoError(t, err)
	assert.NotEmpty(t, created.UUID)

	got, err := rooms.Read(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "host-1", got.HostID)
	assert.Equal(t, []string{"host-1"}, got.MemberIDs())

	// Host identity is attached to the room it created.
	me, err := ids.Get("host-1")
	require.NoError(t, err)
	require.NotNil(t, me.RoomID)
	assert.Equal(t, created.ID, *me.RoomID)

	hosted, ok := rooms.HostedBy("host-1")
	assert.True(t, ok)
	assert.Equal(t, created.ID, hosted.ID)
}

func TestRoomCreateRequiresIdentity(t *testing.T) {
	_, rooms := newRegistries(t)

	_, err := rooms.Create("ghost", "Room1", nil)
	assert.ErrorIs(t, err, session.ErrUserNotFound)
}

func TestRoomCreateRejectsSecondRoom(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "host-1", "alice")

	_, err := rooms.Create("host-1", "Room1", nil)
	require.NoError(t, err)

	_, err = rooms.Create("host-1", "Room2", nil)
	assert.ErrorIs(t, err, session.ErrAlreadyInRoom)
}

func TestRoomJoin(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "host-1", "alice")
	mustIdentity(t, ids, "peer-1", "bob")

	created, err := rooms.Create("host-1", "Room1", intp(1234))
	require.NoError(t, err)

	_, err = rooms.Join("peer-1", created.ID, intp(0))
	assert.ErrorIs(t, err, session.ErrWrongPassword)

	joined, err := rooms.Join("peer-1", created.ID, intp(1234))
	require.NoError(t, err)
	assert.Len(t, joined.MemberIDs(), 2)

	// Already a member now, host of another room is rejected too.
	_, err = rooms.Join("peer-1", created.ID, intp(1234))
	assert.ErrorIs(t, err, session.ErrAlreadyInRoom)
	_, err = rooms.Join("host-1", created.ID, intp(1234))
	assert.ErrorIs(t, err, session.ErrAlreadyHost)
}

func TestRoomJoinUnknownRoom(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "peer-1", "bob")

	_, err := rooms.Join("peer-1", 42, nil)
	assert.ErrorIs(t, err, session.ErrRoomNotFound)
}

func TestCheckPasswordPolicy(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "open-host", "alice")
	mustIdentity(t, ids, "locked-host", "bob")

	open, err := rooms.Create("open-host", "Open", nil)
	require.NoError(t, err)
	locked, err := rooms.Create("locked-host", "Locked", intp(1234))
	require.NoError(t, err)

	// An open room accepts any join, with or without a supplied password.
	assert.True(t, rooms.CheckPassword(open.ID, nil))
	assert.True(t, rooms.CheckPassword(open.ID, intp(9999)))

	// A locked room requires an exact match.
	assert.True(t, rooms.CheckPassword(locked.ID, intp(1234)))
	assert.False(t, rooms.CheckPassword(locked.ID, intp(0)))
	assert.False(t, rooms.CheckPassword(locked.ID, nil))

	// Unknown room is a plain false, not an error.
	assert.False(t, rooms.CheckPassword(42, intp(1234)))
}

func TestRemoveByHost(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "host-1", "alice")
	mustIdentity(t, ids, "peer-1", "bob")

	created, err := rooms.Create("host-1", "Room1", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, rooms.RemoveByHost("peer-1"), session.ErrNotHost)

	require.NoError(t, rooms.RemoveByHost("host-1"))
	_, err = rooms.Read(created.ID)
	assert.ErrorIs(t, err, session.ErrRoomNotFound)
	assert.ErrorIs(t, rooms.RemoveByHost("host-1"), session.ErrNotHost)
}

func TestDetach(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "host-1", "alice")
	mustIdentity(t, ids, "peer-1", "bob")

	created, err := rooms.Create("host-1", "Room1", nil)
	require.NoError(t, err)
	_, err = rooms.Join("peer-1", created.ID, nil)
	require.NoError(t, err)

	// Peers detach; the host never leaves its room this way.
	assert.False(t, rooms.Detach("host-1", created.ID))
	assert.True(t, rooms.Detach("peer-1", created.ID))
	assert.False(t, rooms.Detach("peer-1", created.ID))

	got, err := rooms.Read(created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"host-1"}, got.MemberIDs())
}

func TestSnapshotSortedByName(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "host-1", "Charlie")
	mustIdentity(t, ids, "peer-1", "Bob")
	mustIdentity(t, ids, "peer-2", "Alice")

	created, err := rooms.Create("host-1", "Room1", nil)
	require.NoError(t, err)
	_, err = rooms.Join("peer-1", created.ID, nil)
	require.NoError(t, err)
	_, err = rooms.Join("peer-2", created.ID, nil)
	require.NoError(t, err)

	info := rooms.Snapshot(created.ID)
	require.NotNil(t, info)
	assert.Equal(t, "host-1", info.Host)
	require.Len(t, info.User, 3)
	assert.Equal(t, []session.MemberInfo{
		{ID: "peer-2", Name: "Alice", IsHost: false},
		{ID: "peer-1", Name: "Bob", IsHost: false},
		{ID: "host-1", Name: "Charlie", IsHost: true},
	}, info.User)
}

func TestSnapshotVanishedRoomIsNil(t *testing.T) {
	_, rooms := newRegistries(t)
	assert.Nil(t, rooms.Snapshot(42))
}

func TestUpdateVideoStampsTimes(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "host-1", "alice")

	created, err := rooms.Create("host-1", "Room1", nil)
	require.NoError(t, err)

	v := session.Video{Title: "Frieren", Episode: "12", URL: "https://example.test/v", Speed: 1.0, Time: 120, IsPaused: false}
	require.True(t, rooms.UpdateVideo(created.ID, v))

	got, err := rooms.Read(created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Video)
	assert.Equal(t, "https://example.test/v", got.Video.URL)
	assert.Equal(t, 120.0, got.Video.Time)
	require.NotNil(t, got.VidStartedAt)
	started := *got.VidStartedAt

	require.True(t, rooms.UpdateVideo(created.ID, v))
	got, err = rooms.Read(created.ID)
	require.NoError(t, err)
	assert.Equal(t, started, *got.VidStartedAt, "VidStartedAt is set only once")

	assert.False(t, rooms.UpdateVideo(42, v))
}

func TestPublicListing(t *testing.T) {
	ids, rooms := newRegistries(t)
	mustIdentity(t, ids, "host-1", "alice")
	mustIdentity(t, ids, "host-2", "bob")
	mustIdentity(t, ids, "peer-1", "carol")

	first, err := rooms.Create("host-1", "Open", nil)
	require.NoError(t, err)
	_, err = rooms.Join("peer-1", first.ID, nil)
	require.NoError(t, err)
	_, err = rooms.Create("host-2", "Locked", intp(1234))
	require.NoError(t, err)

	list := rooms.Public()
	require.Len(t, list, 2)

	// Newest first.
	assert.Equal(t, "Locked", list[0].Name)
	assert.Equal(t, "bob", list[0].Host)
	assert.True(t, list[0].IsLocked)
	assert.Equal(t, 1, list[0].UserCount)

	assert.Equal(t, "Open", list[1].Name)
	assert.False(t, list[1].IsLocked)
	assert.Equal(t, 2, list[1].UserCount)
}
