package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PlaybackState is the video state a room has agreed on. It is owned by the
// room and replaced wholesale on every host update.
type PlaybackState struct {
	URL      string  `json:"url"`
	Speed    float64 `json:"speed"`
	Time     float64 `json:"time"`
	IsPaused bool    `json:"isPaused"`
}

// Video is the full inbound "video" payload: playback state plus the labels
// shown in the public listing.
type Video struct {
	Title    string  `json:"title"`
	Episode  string  `json:"episode"`
	URL      string  `json:"url"`
	Speed    float64 `json:"speed"`
	Time     float64 `json:"time"`
	IsPaused bool    `json:"isPaused"`
}

// Room is one active watch-party session. A room always has a live host;
// it is created together with its host and deleted when the host leaves.
type Room struct {
	ID        int
	UUID      string
	Name      string
	Password  *int // nil = open room
	HostID    string
	CreatedAt time.Time

	VidTitle         string
	VidEpisode       string
	Video            *PlaybackState
	VidStartedAt     *time.Time
	VidLastUpdatedAt *time.Time

	members map[string]struct{}
}

// MemberIDs returns the member connection IDs in unspecified order.
func (r Room) MemberIDs() []string {
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

// clone copies the room including its member set, so copies handed out of
// the registry never alias the live map.
func (r *Room) clone() Room {
	c := *r
	c.members = make(map[string]struct{}, len(r.members))
	for id := range r.members {
		c.members[id] = struct{}{}
	}
	return c
}

// RoomInfo is the "roomChanged" wire payload. The member list is sorted by
// display name; "user" is the historical field name for it.
type RoomInfo struct {
	ID   int          `json:"id"`
	Name string       `json:"name"`
	Host string       `json:"host"`
	User []MemberInfo `json:"user"`
}

type MemberInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

// PublicRoom is the read-only listing shape for the REST surface.
// Passwords never appear here, only the isLocked flag.
type PublicRoom struct {
	ID               int        `json:"id"`
	Name             string     `json:"name"`
	Host             string     `json:"host"`
	UserCount        int        `json:"userCount"`
	VidTitle         string     `json:"vidTitle"`
	VidEpisode       string     `json:"vidEpisode"`
	IsLocked         bool       `json:"isLocked"`
	VidStartedAt     *time.Time `json:"vidStartedAt"`
	VidLastUpdatedAt *time.Time `json:"vidLastUpdatedAt"`
}

// Rooms is the registry of active rooms. It owns room rows and the
// host index; membership is mirrored onto identities so that a
// connection's room resolves without scanning.
type Rooms struct {
	ids *Identities

	mu     sync.RWMutex
	nextID int
	byID   map[int]*Room
	byHost map[string]int // host connection ID -> room ID
}

func NewRooms(ids *Identities) *Rooms {
	return &Rooms{ids: ids, nextID: 1, byID: map[int]*Room{}, byHost: map[string]int{}}
}

// Create makes a new room with the caller as host and sole member, and
// attaches the caller's identity to it. Room row and identity attach belong
// to one logical operation: if the identity vanished mid-call (disconnect in
// flight) the room row is rolled back rather than left hostless.
func (r *Rooms) Create(hostConnID, name string, password *int) (Room, error) {
	me, err := r.ids.Get(hostConnID)
	if err != nil {
		return Room{}, err
	}
	if me.RoomID != nil {
		return Room{}, ErrAlreadyInRoom
	}

	r.mu.Lock()
	if _, ok := r.byHost[hostConnID]; ok {
		r.mu.Unlock()
		return Room{}, ErrAlreadyHost
	}
	room := &Room{
		ID:        r.nextID,
		UUID:      uuid.NewString(),
		Name:      name,
		Password:  copyRoomRef(password),
		HostID:    hostConnID,
		CreatedAt: time.Now(),
		members:   map[string]struct{}{hostConnID: {}},
	}
	r.nextID++
	r.byID[room.ID] = room
	r.byHost[hostConnID] = room.ID
	created := room.clone()
	r.mu.Unlock()

	if err := r.ids.SetRoom(hostConnID, &room.ID); err != nil {
		// Identity is already gone, undo the insert.
		r.mu.Lock()
		delete(r.byID, room.ID)
		delete(r.byHost, hostConnID)
		r.mu.Unlock()
		return Room{}, err
	}
	return created, nil
}

// Join attaches the caller to an existing room after the password check.
// The room's existence is re-checked under the lock right before the member
// insert: its host may have disconnected between the read and the write.
func (r *Rooms) Join(connID string, roomID int, password *int) (Room, error) {
	me, err := r.ids.Get(connID)
	if err != nil {
		return Room{}, err
	}
	if _, hosting := r.HostedBy(connID); hosting {
		return Room{}, ErrAlreadyHost
	}
	if me.RoomID != nil {
		return Room{}, ErrAlreadyInRoom
	}
	if _, err := r.Read(roomID); err != nil {
		return Room{}, err
	}
	if !r.CheckPassword(roomID, password) {
		return Room{}, ErrWrongPassword
	}

	r.mu.Lock()
	room, ok := r.byID[roomID]
	if !ok {
		r.mu.Unlock()
		return Room{}, ErrRoomNotFound
	}
	room.members[connID] = struct{}{}
	snapshot := room.clone()
	r.mu.Unlock()

	if err := r.ids.SetRoom(connID, &roomID); err != nil {
		r.mu.Lock()
		if room, ok := r.byID[roomID]; ok {
			delete(room.members, connID)
		}
		r.mu.Unlock()
		return Room{}, err
	}
	return snapshot, nil
}

// CheckPassword is a pure predicate: an open room accepts any join whether
// or not a password was supplied; a locked room requires an exact match.
// An unknown room is a plain false, callers wanting an error use Read first.
func (r *Rooms) CheckPassword(roomID int, password *int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.byID[roomID]
	if !ok {
		return false
	}
	if room.Password == nil {
		return true
	}
	return password != nil && *password == *room.Password
}

// Read returns a copy of the room or ErrRoomNotFound.
func (r *Rooms) Read(roomID int) (Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.byID[roomID]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return room.clone(), nil
}

// ReadMine resolves the caller's current room.
func (r *Rooms) ReadMine(connID string) (Room, error) {
	me, err := r.ids.Get(connID)
	if err != nil {
		return Room{}, err
	}
	if me.RoomID == nil {
		return Room{}, ErrRoomNotFound
	}
	return r.Read(*me.RoomID)
}

// HostedBy returns the room hosted by the connection, if any.
func (r *Rooms) HostedBy(connID string) (Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byHost[connID]
	if !ok {
		return Room{}, false
	}
	room, ok := r.byID[roomID]
	if !ok {
		return Room{}, false
	}
	return room.clone(), true
}

// Detach removes the connection from the room's member set. Host removal
// goes through RemoveByHost instead; detaching a host this way is rejected.
func (r *Rooms) Detach(connID string, roomID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byID[roomID]
	if !ok || room.HostID == connID {
		return false
	}
	if _, ok := room.members[connID]; !ok {
		return false
	}
	delete(room.members, connID)
	return true
}

// RemoveByHost deletes the room hosted by the caller. It deletes only the
// room row; detaching the member identities is the lifecycle controller's
// job and happens before this call.
func (r *Rooms) RemoveByHost(hostConnID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.byHost[hostConnID]
	if !ok {
		return ErrNotHost
	}
	delete(r.byID, roomID)
	delete(r.byHost, hostConnID)
	return nil
}

// UpdateVideo replaces the room's playback state wholesale and stamps the
// update times. VidStartedAt is set once, on the first update.
func (r *Rooms) UpdateVideo(roomID int, v Video) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byID[roomID]
	if !ok {
		return false
	}
	now := time.Now()
	room.VidTitle = v.Title
	room.VidEpisode = v.Episode
	room.Video = &PlaybackState{URL: v.URL, Speed: v.Speed, Time: v.Time, IsPaused: v.IsPaused}
	room.VidLastUpdatedAt = &now
	if room.VidStartedAt == nil {
		room.VidStartedAt = &now
	}
	return true
}

// Snapshot builds the RoomInfo broadcast payload, or nil if the room
// vanished between the triggering event and now. Nil is a normal outcome
// under concurrent teardown and means "nothing to broadcast".
func (r *Rooms) Snapshot(roomID int) *RoomInfo {
	r.mu.RLock()
	room, ok := r.byID[roomID]
	if !ok {
		r.mu.RUnlock()
		return nil
	}
	memberIDs := room.MemberIDs()
	info := &RoomInfo{ID: room.ID, Name: room.Name, Host: room.HostID, User: []MemberInfo{}}
	r.mu.RUnlock()

	for _, id := range memberIDs {
		member, err := r.ids.Get(id)
		if err != nil {
			continue // detached concurrently
		}
		info.User = append(info.User, MemberInfo{ID: member.ID, Name: member.Name, IsHost: member.ID == info.Host})
	}
	sort.Slice(info.User, func(i, j int) bool { return info.User[i].Name < info.User[j].Name })
	return info
}

// Public lists every active room for the REST surface, newest first.
func (r *Rooms) Public() []PublicRoom {
	r.mu.RLock()
	rooms := make([]Room, 0, len(r.byID))
	for _, room := range r.byID {
		rooms = append(rooms, room.clone())
	}
	r.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID > rooms[j].ID })

	out := make([]PublicRoom, 0, len(rooms))
	for _, room := range rooms {
		hostName := ""
		if host, err := r.ids.Get(room.HostID); err == nil {
			hostName = host.Name
		}
		out = append(out, PublicRoom{
			ID:               room.ID,
			Name:             room.Name,
			Host:             hostName,
			UserCount:        len(room.members),
			VidTitle:         room.VidTitle,
			VidEpisode:       room.VidEpisode,
			IsLocked:         room.Password != nil,
			VidStartedAt:     room.VidStartedAt,
			VidLastUpdatedAt: room.VidLastUpdatedAt,
		})
	}
	return out
}
