package session

import "log/slog"

// Playback applies host playback updates and fans them out. Only the host
// may author playback truth; peers are observers, so no merge logic exists.
type Playback struct {
	log    *slog.Logger
	rooms  *Rooms
	fabric *Fabric
}

func NewPlayback(log *slog.Logger, rooms *Rooms, fabric *Fabric) *Playback {
	return &Playback{log: log, rooms: rooms, fabric: fabric}
}

// Apply overwrites the caller's room playback state and broadcasts
// "videoChanged" to everyone else in the room. The host check runs before
// any mutation; a non-host changes nothing.
func (p *Playback) Apply(connID string, v Video) error {
	room, hosting := p.rooms.HostedBy(connID)
	if !hosting {
		return ErrNotHost
	}
	if !p.rooms.UpdateVideo(room.ID, v) {
		// Room vanished between the host check and the write.
		return ErrRoomNotFound
	}
	p.log.Debug("playback.updated", "room", room.ID, "url", v.URL, "time", v.Time, "paused", v.IsPaused)
	p.fabric.ExcludeSender(connID, "videoChanged", v)
	return nil
}
