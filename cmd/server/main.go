package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/koderpark/ani-relayer-be/internal/app"
	httpx "github.com/koderpark/ani-relayer-be/internal/http"
	"github.com/koderpark/ani-relayer-be/internal/session"
	"github.com/koderpark/ani-relayer-be/internal/stats"
	"github.com/koderpark/ani-relayer-be/internal/store"
	"github.com/koderpark/ani-relayer-be/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres connection + migrations (durable accounts)
	pg, err := store.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("postgres connect", "err", err)
		log.Fatal(err)
	}
	defer pg.Close()
	if err := store.RunMigrations(ctx, pg, logger); err != nil {
		logger.Error("migrations", "err", err)
		log.Fatal(err)
	}

	// Redis statistics sink
	st, err := stats.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("redis connect", "err", err)
		log.Fatal(err)
	}
	defer st.Close()

	// Session core: identities, rooms, broadcast fabric, lifecycle
	ids := session.NewIdentities()
	rooms := session.NewRooms(ids)
	fabric := session.NewFabric(logger, ids)
	svc := session.NewService(logger, ids, rooms, fabric, st)

	// WebSocket hub
	hub := ws.NewHub(logger, svc)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub, svc, pg, st)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
}
