package httpx

import (
	"net/http"

	"github.com/koderpark/ani-relayer-be/internal/session"
	"github.com/koderpark/ani-relayer-be/internal/stats"
)

// RoomsAPI exposes read-only views of the live room registry and the
// statistics sink. It never mutates session state.
type RoomsAPI struct {
	Rooms *session.Rooms
	Stats *stats.Redis
}

// ListPublic returns every active room in listing shape, newest first
func (a *RoomsAPI) ListPublic(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.Rooms.Public())
}

// GetStats returns the aggregate counters from redis
func (a *RoomsAPI) GetStats(w http.ResponseWriter, r *http.Request) {
	if a.Stats == nil {
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}
	sum, err := a.Stats.Read(r.Context())
	if err != nil {
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, sum)
}
