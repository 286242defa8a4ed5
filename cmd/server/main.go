package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bkoehler/tgtg-notify/internal/bot"
	"github.com/bkoehler/tgtg-notify/internal/config"
	"github.com/bkoehler/tgtg-notify/internal/dedup"
	"github.com/bkoehler/tgtg-notify/internal/ledger"
	"github.com/bkoehler/tgtg-notify/internal/notifier"
	"github.com/bkoehler/tgtg-notify/internal/reservation"
	"github.com/bkoehler/tgtg-notify/internal/tgtg"
)

// offerLedger is what the server needs beyond the dedup interface:
// stats for the HTTP endpoint and a clean shutdown.
type offerLedger interface {
	ledger.Ledger
	Close() error
}

type Server struct {
	dedup  *dedup.Deduplicator
	ledger offerLedger
}

func main() {
	slog.Info("Starting TGTG offer notifier...")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	led, err := openLedger(ctx, cfg)
	if err != nil {
		slog.Error("Critical error opening offer ledger", "error", err)
		os.Exit(1)
	}
	defer led.Close()

	tgtgClient := tgtg.New(cfg.TgtgAccessToken, cfg.TgtgRefreshToken, cfg.TgtgCookie)
	telegram := notifier.New(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.Timezone)

	deduper := dedup.New(tgtgClient, telegram, led, cfg.SendDelay, cfg.Retention)
	manager := reservation.NewManager(tgtgClient, telegram, reservation.NewScheduler())
	handler := bot.New(telegram, manager, cfg.AutoCancelAfter)

	srv := &Server{dedup: deduper, ledger: led}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /check", srv.CheckHandler)
	mux.HandleFunc("GET /health", srv.HealthHandler)
	mux.HandleFunc("GET /stats", srv.StatsHandler)
	mux.HandleFunc("GET /recent", srv.RecentHandler)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	telegram.PushText(ctx, fmt.Sprintf(
		"🤖 <b>TGTG notifier started</b>\n\n⏱ Checking every %s\n💾 Ledger backend: %s",
		cfg.CheckInterval, cfg.LedgerBackend))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Listening on port", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return runPollLoop(ctx, deduper, cfg.CheckInterval) })
	g.Go(func() error { return handler.Run(ctx) })
	g.Go(func() error { return runJanitor(ctx, manager, cfg.CleanupInterval) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func openLedger(ctx context.Context, cfg *config.Config) (offerLedger, error) {
	switch cfg.LedgerBackend {
	case config.BackendFirestore:
		return ledger.NewFirestore(ctx, cfg.ProjectID)
	default:
		return ledger.OpenSQLite(cfg.LedgerDBPath)
	}
}

// runPollLoop runs one offer check immediately, then one per interval.
func runPollLoop(ctx context.Context, deduper *dedup.Deduplicator, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := deduper.RunCycle(ctx); err != nil {
			slog.Error("Offer check cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runJanitor periodically cancels reservations whose deadline passed but
// whose timer never fired, e.g. after a timer was lost to a crash-restart.
func runJanitor(ctx context.Context, manager *reservation.Manager, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := manager.CleanupExpired(ctx); n > 0 {
				slog.Info("Janitor cancelled expired reservations", "count", n)
			}
		}
	}
}

func (s *Server) CheckHandler(w http.ResponseWriter, r *http.Request) {
	// Run the cycle asynchronously so the HTTP response isn't blocked by
	// marketplace, ledger, and Telegram calls that may exceed timeouts.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in offer check cycle", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()
		if err := s.dedup.RunCycle(ctx); err != nil {
			slog.Error("Error running offer check", "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Offer check started.")
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.ledger.Stats(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		slog.Error("Failed to encode stats response", "error", err)
	}
}

// RecentHandler returns the notifications sent in the last N hours
// (?hours=N, default 24).
func (s *Server) RecentHandler(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	records := s.ledger.Recent(r.Context(), time.Duration(hours)*time.Hour)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		slog.Error("Failed to encode recent response", "error", err)
	}
}
