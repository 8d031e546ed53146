package session

import "context"

// StatsSink receives room lifecycle events for external statistics.
// Implementations must be best-effort: the session core never fails an
// operation because a stats write failed.
type StatsSink interface {
	RoomOpened(ctx context.Context, room Room)
	RoomClosed(ctx context.Context, roomID int)
	PeerJoined(ctx context.Context, roomID int)
	PlaybackUpdated(ctx context.Context, roomID int)
}

// NopStats discards everything; used in tests and when Redis is absent.
type NopStats struct{}

func (NopStats) RoomOpened(context.Context, Room)     {}
func (NopStats) RoomClosed(context.Context, int)      {}
func (NopStats) PeerJoined(context.Context, int)      {}
func (NopStats) PlaybackUpdated(context.Context, int) {}
