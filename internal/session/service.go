package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/koderpark/ani-relayer-be/pkg/metrics"
)

// Handshake carries the connection-scoped parameters supplied once, at
// upgrade time. Hosts name a new room, peers address an existing one.
type Handshake struct {
	Type     string // "host" or "peer"
	Username string
	RoomName string // host only
	RoomID   int    // peer only
	Password *int   // nil or empty = no password
}

// UserInfo is the private "user" event sent once after a successful
// handshake.
type UserInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	RoomID    *int      `json:"roomId"`
	IsHost    bool      `json:"isHost"`
}

// ChatMessage is the "chat" fan-out payload.
type ChatMessage struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
}

// Service is the connection lifecycle controller: it runs the handshake,
// wires a connection into its room's broadcast group, routes chat and kick,
// and performs the cascading teardown when a connection drops.
type Service struct {
	log      *slog.Logger
	ids      *Identities
	rooms    *Rooms
	fabric   *Fabric
	playback *Playback
	stats    StatsSink
}

func NewService(log *slog.Logger, ids *Identities, rooms *Rooms, fabric *Fabric, stats StatsSink) *Service {
	if stats == nil {
		stats = NopStats{}
	}
	return &Service{
		log:      log,
		ids:      ids,
		rooms:    rooms,
		fabric:   fabric,
		playback: NewPlayback(log, rooms, fabric),
		stats:    stats,
	}
}

// Rooms exposes the room registry for the read-only REST surface.
func (s *Service) Rooms() *Rooms { return s.rooms }

// OnConnect runs the whole handshake. On any error the partially-created
// identity is destroyed before returning, so a failed handshake leaks
// nothing; the transport then emits the "error" event and disconnects.
func (s *Service) OnConnect(ctx context.Context, connID string, hs Handshake, sender Sender) error {
	if hs.Type != "host" && hs.Type != "peer" {
		metrics.HandshakesRejected.Inc()
		return ErrInvalidInputType
	}

	me, err := s.ids.Create(connID, hs.Username)
	if err != nil {
		metrics.HandshakesRejected.Inc()
		return fmt.Errorf("create identity: %w", err)
	}

	s.fabric.Register(connID, sender)

	var room Room
	switch hs.Type {
	case "host":
		room, err = s.rooms.Create(connID, hs.RoomName, hs.Password)
	case "peer":
		room, err = s.rooms.Join(connID, hs.RoomID, hs.Password)
	}
	if err != nil {
		s.fabric.Unregister(connID)
		s.ids.Destroy(connID)
		metrics.HandshakesRejected.Inc()
		return err
	}

	s.fabric.Bind(connID, room.ID)

	isHost := room.HostID == connID
	if isHost {
		s.stats.RoomOpened(ctx, room)
		metrics.ActiveRooms.Inc()
		s.log.Info("session.room.opened", "room", room.ID, "name", room.Name, "host", connID)
	} else {
		s.stats.PeerJoined(ctx, room.ID)
		s.log.Info("session.peer.joined", "room", room.ID, "conn", connID)
	}
	metrics.ConnectedClients.Inc()

	s.roomChanged(room.ID)
	sender.Send("user", UserInfo{
		ID:        me.ID,
		Name:      me.Name,
		CreatedAt: me.CreatedAt,
		RoomID:    &room.ID,
		IsHost:    isHost,
	})
	return nil
}

// OnDisconnect tears down whatever the connection owned. Best-effort all
// the way: sub-step failures are logged, never propagated, and a second
// call for the same connection is a no-op.
func (s *Service) OnDisconnect(ctx context.Context, connID string) {
	defer s.fabric.Unregister(connID)

	me, err := s.ids.Get(connID)
	if err != nil {
		return // already cleaned up
	}

	hosted, isHost := s.rooms.HostedBy(connID)
	if isHost {
		// Clear every other member's room reference before the room row
		// goes away, then delete the row.
		for _, memberID := range hosted.MemberIDs() {
			if memberID == connID {
				continue
			}
			if err := s.ids.SetRoom(memberID, nil); err != nil {
				s.log.Debug("session.member.detach", "conn", memberID, "err", err)
			}
		}
		if err := s.rooms.RemoveByHost(connID); err != nil {
			s.log.Error("session.room.remove", "conn", connID, "err", err)
		}
		s.stats.RoomClosed(ctx, hosted.ID)
		metrics.ActiveRooms.Dec()
		s.log.Info("session.room.closed", "room", hosted.ID, "host", connID)
	} else if me.RoomID != nil {
		s.rooms.Detach(connID, *me.RoomID)
	}

	s.ids.Destroy(connID)
	metrics.ConnectedClients.Dec()

	// Notify survivors using the room ID captured before destruction; the
	// nil snapshot of a deleted room broadcasts as null on purpose.
	if me.RoomID != nil {
		roomID := *me.RoomID
		s.fabric.Unbind(connID, roomID)
		s.fabric.ToRoom(roomID, "roomChanged", s.rooms.Snapshot(roomID))
		if isHost {
			s.fabric.DropGroup(roomID)
		}
	}
}

// Video applies a host playback update (see Playback).
func (s *Service) Video(connID string, v Video) error {
	if err := s.playback.Apply(connID, v); err != nil {
		return err
	}
	if room, ok := s.rooms.HostedBy(connID); ok {
		s.stats.PlaybackUpdated(context.Background(), room.ID)
	}
	return nil
}

// Chat fans a message out to the sender's whole room, sender included.
func (s *Service) Chat(connID, message string) error {
	me, err := s.ids.Get(connID)
	if err != nil {
		return err
	}
	if me.RoomID == nil {
		return nil // room torn down concurrently, nothing to deliver
	}
	s.fabric.ToRoom(*me.RoomID, "chat", ChatMessage{
		SenderID:   me.ID,
		SenderName: me.Name,
		Message:    message,
	})
	return nil
}

// Kick force-disconnects a member of the caller's room. Host only; the
// target's own disconnect path does the cleanup.
func (s *Service) Kick(connID, targetID string) error {
	hosted, isHost := s.rooms.HostedBy(connID)
	if !isHost {
		return ErrNotHost
	}
	target, err := s.ids.Get(targetID)
	if err != nil {
		return err
	}
	if target.RoomID == nil || *target.RoomID != hosted.ID {
		return ErrUserNotFound
	}
	sender, ok := s.fabric.Lookup(targetID)
	if !ok {
		return ErrUserNotFound
	}
	s.log.Info("session.kick", "room", hosted.ID, "by", connID, "target", targetID)
	sender.Close("kicked")
	return nil
}

// roomChanged broadcasts the current room snapshot to the whole room. A
// vanished room yields a nil snapshot and nothing is sent.
func (s *Service) roomChanged(roomID int) {
	info := s.rooms.Snapshot(roomID)
	if info == nil {
		return
	}
	s.fabric.ToRoom(roomID, "roomChanged", info)
}
