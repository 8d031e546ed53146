package session

import (
	"fmt"
	"sync"
	"time"
)

// Identity is the server-side record for one live connection. It exists from
// handshake to disconnect and is hard-deleted afterwards; the ID is the
// connection's ID and is never reused for a reconnect.
type Identity struct {
	ID        string
	Name      string
	CreatedAt time.Time

	// RoomID is the room this identity is a member of, nil when none.
	// Whether the identity hosts that room is derived from the room's
	// host field, never stored here.
	RoomID *int
}

// IdentityPatch is a partial update. Nil fields are left untouched.
// Membership moves through SetRoom, which can tell "no row" apart from
// "nothing changed".
type IdentityPatch struct {
	Name *string
}

// Identities is the registry of live connection identities. All other
// components resolve connections through it; nothing else holds
// connection-keyed state about who a client is.
type Identities struct {
	mu   sync.RWMutex
	byID map[string]*Identity
}

func NewIdentities() *Identities {
	return &Identities{byID: map[string]*Identity{}}
}

// Create inserts the identity for a new connection. Called exactly once per
// connection during the handshake; a second call for a live connection is a
// caller bug and fails like a duplicate-key insert would.
func (r *Identities) Create(connID, name string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[connID]; ok {
		return Identity{}, fmt.Errorf("identity %q already exists", connID)
	}
	id := &Identity{ID: connID, Name: name, CreatedAt: time.Now()}
	r.byID[connID] = id
	return *id, nil
}

// Get returns a copy of the identity, or ErrUserNotFound once the
// connection has been cleaned up.
func (r *Identities) Get(connID string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byID[connID]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return *id, nil
}

// Update applies a partial update and reports whether anything changed.
// A no-op update is not an error.
func (r *Identities) Update(connID string, p IdentityPatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byID[connID]
	if !ok {
		return false
	}
	changed := false
	if p.Name != nil && *p.Name != id.Name {
		id.Name = *p.Name
		changed = true
	}
	return changed
}

// SetRoom replaces the identity's membership reference (nil clears it).
// Unlike Update's changed flag, the error carries the case callers must
// react to: ErrUserNotFound when the identity was destroyed by a
// concurrently-processing disconnect. A same-value write is a plain nil.
func (r *Identities) SetRoom(connID string, roomID *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byID[connID]
	if !ok {
		return ErrUserNotFound
	}
	if !roomRefEqual(id.RoomID, roomID) {
		id.RoomID = copyRoomRef(roomID)
	}
	return nil
}

// Destroy removes the identity permanently. Reports whether a record was
// actually deleted, so a second disconnect for the same connection is a
// visible no-op.
func (r *Identities) Destroy(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[connID]; !ok {
		return false
	}
	delete(r.byID, connID)
	return true
}

func roomRefEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyRoomRef(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
