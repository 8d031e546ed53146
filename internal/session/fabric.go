package session

import (
	"log/slog"
	"sync"

	"github.com/koderpark/ani-relayer-be/pkg/metrics"
)

// Sender is one live connection's outbound side, implemented by the
// websocket transport. Send is fire-and-forget: it reports false when the
// frame was dropped (full buffer, closing connection) and never blocks.
// Close force-disconnects the client; the transport then runs the normal
// disconnect path.
type Sender interface {
	Send(event string, data any) bool
	Close(reason string)
}

// Fabric delivers named events to broadcast groups: everyone in a room, or
// everyone in a room except the sender. It resolves a sender's room through
// the identity registry so callers don't pass room IDs they may hold stale.
type Fabric struct {
	log *slog.Logger
	ids *Identities

	mu    sync.RWMutex
	conns map[string]Sender           // every live connection
	rooms map[int]map[string]struct{} // broadcast groups by room ID
}

func NewFabric(log *slog.Logger, ids *Identities) *Fabric {
	return &Fabric{
		log:   log,
		ids:   ids,
		conns: map[string]Sender{},
		rooms: map[int]map[string]struct{}{},
	}
}

// Register makes the connection addressable for fan-out and kicks.
func (f *Fabric) Register(connID string, s Sender) {
	f.mu.Lock()
	f.conns[connID] = s
	f.mu.Unlock()
}

// Unregister drops the connection from the fabric and from any group it is
// still bound to. Safe to call more than once.
func (f *Fabric) Unregister(connID string) {
	f.mu.Lock()
	delete(f.conns, connID)
	for _, group := range f.rooms {
		delete(group, connID)
	}
	f.mu.Unlock()
}

// Bind attaches the connection to a room's broadcast group.
func (f *Fabric) Bind(connID string, roomID int) {
	f.mu.Lock()
	group := f.rooms[roomID]
	if group == nil {
		group = map[string]struct{}{}
		f.rooms[roomID] = group
	}
	group[connID] = struct{}{}
	f.mu.Unlock()
}

// Unbind detaches the connection from a room's broadcast group.
func (f *Fabric) Unbind(connID string, roomID int) {
	f.mu.Lock()
	if group, ok := f.rooms[roomID]; ok {
		delete(group, connID)
		if len(group) == 0 {
			delete(f.rooms, roomID)
		}
	}
	f.mu.Unlock()
}

// DropGroup removes a room's broadcast group entirely. Used after the final
// roomChanged fan-out when a room is torn down.
func (f *Fabric) DropGroup(roomID int) {
	f.mu.Lock()
	delete(f.rooms, roomID)
	f.mu.Unlock()
}

// Lookup returns the Sender for a live connection.
func (f *Fabric) Lookup(connID string) (Sender, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.conns[connID]
	return s, ok
}

// ToRoom delivers an event to every connection in the room's group,
// including the sender if bound. At-most-once per recipient, no retries.
func (f *Fabric) ToRoom(roomID int, event string, data any) {
	f.deliver(f.groupTargets(roomID, ""), roomID, event, data)
}

// ExcludeSender delivers an event to every other member of the sender's
// current room. A sender without a room is a silent no-op: its room may
// have been torn down by a disconnect still in flight.
func (f *Fabric) ExcludeSender(senderID, event string, data any) {
	me, err := f.ids.Get(senderID)
	if err != nil || me.RoomID == nil {
		return
	}
	f.deliver(f.groupTargets(*me.RoomID, senderID), *me.RoomID, event, data)
}

// deliver pushes one event to each target. A refused frame (full buffer,
// closing connection) is dropped and logged, never retried.
func (f *Fabric) deliver(targets []target, roomID int, event string, data any) {
	for _, t := range targets {
		if t.s.Send(event, data) {
			metrics.EventsDelivered.WithLabelValues(event).Inc()
		} else {
			f.log.Debug("fabric.drop", "event", event, "room", roomID, "conn", t.connID)
		}
	}
}

type target struct {
	connID string
	s      Sender
}

// groupTargets snapshots a group's senders under the read lock so delivery
// happens outside it.
func (f *Fabric) groupTargets(roomID int, exclude string) []target {
	f.mu.RLock()
	defer f.mu.RUnlock()
	group := f.rooms[roomID]
	out := make([]target, 0, len(group))
	for connID := range group {
		if connID == exclude {
			continue
		}
		if s, ok := f.conns[connID]; ok {
			out = append(out, target{connID: connID, s: s})
		}
	}
	return out
}
