package httpx

import (
	"log/slog"
	"net/http"

	"github.com/koderpark/ani-relayer-be/internal/app"
	"github.com/koderpark/ani-relayer-be/internal/session"
	"github.com/koderpark/ani-relayer-be/internal/stats"
	"github.com/koderpark/ani-relayer-be/internal/store"
	"github.com/koderpark/ani-relayer-be/internal/ws"
	"github.com/koderpark/ani-relayer-be/pkg/auth"
	"github.com/koderpark/ani-relayer-be/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, svc *session.Service, db *store.Postgres, st *stats.Redis) http.Handler {
	mw := NewMiddleware(cfg)

	j := auth.New(cfg.JWTSecret)
	authAPI := &AuthAPI{DB: db, JWT: j}
	roomsAPI := &RoomsAPI{Rooms: svc.Rooms(), Stats: st}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint (handshake params in the query string)
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	// Auth endpoints
	mux.Handle("POST /api/auth/register", http.HandlerFunc(authAPI.Register))
	mux.Handle("POST /api/auth/login", http.HandlerFunc(authAPI.Login))
	mux.Handle("POST /api/auth/password", mw.Auth(http.HandlerFunc(authAPI.ChangePassword)))
	mux.Handle("GET /api/auth/me", mw.Auth(http.HandlerFunc(authAPI.Me)))

	// Read-only room listing + statistics
	mux.Handle("GET /api/rooms/public", http.HandlerFunc(roomsAPI.ListPublic))
	mux.Handle("GET /api/stats", http.HandlerFunc(roomsAPI.GetStats))

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
