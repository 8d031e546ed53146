package stats

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koderpark/ani-relayer-be/internal/app"
	"github.com/koderpark/ani-relayer-be/internal/session"
)

// Redis records room lifecycle statistics. Everything here is advisory:
// failures are logged and swallowed so the session core never stalls on the
// stats path.
type Redis struct {
	rdb *redis.Client
	log *slog.Logger
}

var _ session.StatsSink = (*Redis)(nil)

// New connects to redis and verifies connectivity
func New(ctx context.Context, cfg app.Config, log *slog.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{rdb: rdb, log: log}, nil
}

// Close shuts down the redis connection
func (s *Redis) Close() { _ = s.rdb.Close() }

// Summary is the /api/stats response shape.
type Summary struct {
	RoomsOpened     int64 `json:"roomsOpened"`
	RoomsActive     int64 `json:"roomsActive"`
	RoomsPeak       int64 `json:"roomsPeak"`
	PeersJoined     int64 `json:"peersJoined"`
	PlaybackUpdates int64 `json:"playbackUpdates"`
}

func (s *Redis) RoomOpened(ctx context.Context, room session.Room) {
	pipe := s.rdb.Pipeline()
	pipe.Incr(ctx, keyRoomsOpened)
	active := pipe.Incr(ctx, keyRoomsActive)
	pipe.HSet(ctx, keyRoom(room.ID), map[string]any{
		"name":       room.Name,
		"host":       room.HostID,
		"locked":     room.Password != nil,
		"created_at": room.CreatedAt.Format(time.RFC3339),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("stats.room.opened", "room", room.ID, "err", err)
		return
	}

	// Peak tracking is approximate; a lost race only understates the peak.
	if peak, err := s.rdb.Get(ctx, keyRoomsPeak).Int64(); err != nil || active.Val() > peak {
		_ = s.rdb.Set(ctx, keyRoomsPeak, active.Val(), 0).Err()
	}
}

func (s *Redis) RoomClosed(ctx context.Context, roomID int) {
	pipe := s.rdb.Pipeline()
	pipe.Decr(ctx, keyRoomsActive)
	pipe.Del(ctx, keyRoom(roomID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("stats.room.closed", "room", roomID, "err", err)
	}
}

func (s *Redis) PeerJoined(ctx context.Context, roomID int) {
	if err := s.rdb.Incr(ctx, keyPeersJoined).Err(); err != nil {
		s.log.Warn("stats.peer.joined", "room", roomID, "err", err)
	}
}

func (s *Redis) PlaybackUpdated(ctx context.Context, roomID int) {
	if err := s.rdb.Incr(ctx, keyPlaybackUpdates).Err(); err != nil {
		s.log.Warn("stats.playback.updated", "room", roomID, "err", err)
	}
}

// Read returns the aggregate counters for the REST surface.
func (s *Redis) Read(ctx context.Context) (Summary, error) {
	vals, err := s.rdb.MGet(ctx, keyRoomsOpened, keyRoomsActive, keyRoomsPeak, keyPeersJoined, keyPlaybackUpdates).Result()
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		RoomsOpened:     asInt64(vals[0]),
		RoomsActive:     asInt64(vals[1]),
		RoomsPeak:       asInt64(vals[2]),
		PeersJoined:     asInt64(vals[3]),
		PlaybackUpdates: asInt64(vals[4]),
	}, nil
}

const (
	keyRoomsOpened     = "stats:rooms_opened"
	keyRoomsActive     = "stats:rooms_active"
	keyRoomsPeak       = "stats:rooms_peak"
	keyPeersJoined     = "stats:peers_joined"
	keyPlaybackUpdates = "stats:playback_updates"
)

// keyRoom namespaces the per-room hash
func keyRoom(roomID int) string { return "room:" + strconv.Itoa(roomID) }

func asInt64(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
