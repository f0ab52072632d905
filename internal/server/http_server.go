package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oggyb/muzz-social/internal/config"
	"github.com/oggyb/muzz-social/internal/notify"
)

// HealthCheck reports whether a backing store is reachable.
type HealthCheck func(ctx context.Context) error

// HTTPDeps are the collaborators of the HTTP surface.
type HTTPDeps struct {
	Logger     *slog.Logger
	Subscriber *notify.Subscriber
	Checks     map[string]HealthCheck
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHTTPHandler serves health, metrics and the notification websocket.
func NewHTTPHandler(deps HTTPDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(deps.Checks))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/subscriptions", subscriptionHandler(deps.Subscriber, deps.Logger))
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// subscriptionHandler streams the caller's notifications, in order, as
// JSON text frames until either side goes away.
func subscriptionHandler(sub *notify.Subscriber, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(CallerHeader)
		if userID == "" {
			userID = r.URL.Query().Get("userId")
		}
		if userID == "" {
			http.Error(w, "missing "+CallerHeader, http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		events, stop, err := sub.Subscribe(ctx, userID)
		if err != nil {
			logger.Error("subscribe failed", "user", userID, "err", err)
			return
		}
		defer stop()

		// reads only detect the client closing
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		logger.Debug("subscription opened", "user", userID)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(n); err != nil {
					logger.Debug("subscription closed", "user", userID, "err", err)
					return
				}
			}
		}
	}
}

// StartHTTPServer serves handler until ctx is done.
func StartHTTPServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting HTTP server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
