// Package health exposes the bot's liveness flag over HTTP.
//
// Deployment platforms probe a port to decide whether the process is alive;
// that concern is kept out of the sync core, which only contributes the
// boolean.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Checker reports whether the bot has completed at least one sync cycle.
// Implemented by *syncer.Syncer.
type Checker interface {
	Healthy() bool
}

// Handler returns the liveness router.
func Handler(c Checker) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := "starting"
		code := http.StatusServiceUnavailable
		if c.Healthy() {
			status = "ok"
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	return r
}

// Serve runs the liveness endpoint on addr until ctx is cancelled.
// Listen failures are logged, not fatal: a broken health port should never
// take the bot down.
func Serve(ctx context.Context, addr string, c Checker) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(c),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("health endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("health endpoint failed", "addr", addr, "error", err)
	}
}
