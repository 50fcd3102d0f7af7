// Package health exposes liveness, readiness, and a hand-rolled Prometheus
// exposition endpoint, grounded on the teacher's internal/http-server/api.Server
// listener/shutdown idiom and lib/api/response.Response envelope for the
// JSON endpoints. /metrics is plain fmt.Fprintf text formatting rather than
// prometheus/client_golang: no example repo in the pack imports it, so
// there is no grounded wiring for that client library (see DESIGN.md).
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"multibot/internal/botmgr"
	"multibot/internal/stats"
	"multibot/internal/store"
	"multibot/lib/api/response"
	"multibot/lib/sl"
)

// Server exposes /health/live (liveness), /health/ready (readiness),
// /health/full (full bot fleet snapshot), and /metrics (Prometheus text
// exposition).
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

func New(host, port string, st *store.Store, bots *botmgr.Manager, collector *stats.Collector, log *slog.Logger) (*Server, error) {
	s := &Server{log: log.With(sl.Module("health"))}

	router := chi.NewRouter()
	router.Get("/health/live", s.liveness())
	router.Get("/health/ready", s.readiness(st, bots))
	router.Get("/health/full", s.full(bots))
	router.Get("/metrics", s.metrics(st, bots, collector))

	httpLog := slog.NewLogLogger(s.log.Handler(), slog.LevelError)
	s.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	addr := net.JoinHostPort(host, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s.log.Info("starting health server", slog.String("address", addr))
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.With(sl.Err(err)).Error("health server error")
		}
	}()

	return s, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down health server")
	return s.httpServer.Shutdown(ctx)
}

// liveness never touches the store; it only confirms the process is
// scheduling goroutines at all.
func (s *Server) liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.Ok(map[string]string{"status": "alive"}))
	}
}

// readiness fails (503) if the store is unreachable or if no bot is
// currently running — per spec.md §6, a process with a live store but zero
// running bots is not yet doing its job.
func (s *Server) readiness(st *store.Store, bots *botmgr.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.Healthy(ctx); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("store unreachable"))
			return
		}
		if runningBots(bots) == 0 {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("no bots running"))
			return
		}
		render.JSON(w, r, response.Ok(map[string]string{"status": "ready"}))
	}
}

// full reports every managed bot's lifecycle state, for operators.
func (s *Server) full(bots *botmgr.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.Ok(bots.ListStatuses()))
	}
}

func runningBots(bots *botmgr.Manager) int {
	n := 0
	for _, st := range bots.ListStatuses() {
		if st.State == botmgr.StateRunning {
			n++
		}
	}
	return n
}

// metrics emits the gauge set spec.md §6 names, in Prometheus text
// exposition format. Intentionally hand-rolled (see package doc).
func (s *Server) metrics(st *store.Store, bots *botmgr.Manager, collector *stats.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		size, free := st.PoolStats()
		fmt.Fprintf(w, "# HELP multibot_db_pool_size Configured database connection pool size.\n")
		fmt.Fprintf(w, "# TYPE multibot_db_pool_size gauge\n")
		fmt.Fprintf(w, "multibot_db_pool_size %d\n", size)
		fmt.Fprintf(w, "# HELP multibot_db_pool_free Idle database connections available.\n")
		fmt.Fprintf(w, "# TYPE multibot_db_pool_free gauge\n")
		fmt.Fprintf(w, "multibot_db_pool_free %d\n", free)

		statuses := bots.ListStatuses()
		fmt.Fprintf(w, "# HELP multibot_bots_total Total number of managed bots.\n")
		fmt.Fprintf(w, "# TYPE multibot_bots_total gauge\n")
		fmt.Fprintf(w, "multibot_bots_total %d\n", len(statuses))

		running := 0
		fmt.Fprintf(w, "# HELP multibot_bot_running Whether a managed bot is currently running.\n")
		fmt.Fprintf(w, "# TYPE multibot_bot_running gauge\n")
		for _, st := range statuses {
			isRunning := 0
			if st.State == botmgr.StateRunning {
				isRunning = 1
				running++
			}
			fmt.Fprintf(w, "multibot_bot_running{bot_id=%q} %d\n", st.BotID, isRunning)
		}
		fmt.Fprintf(w, "# HELP multibot_bots_running Number of managed bots currently running.\n")
		fmt.Fprintf(w, "# TYPE multibot_bots_running gauge\n")
		fmt.Fprintf(w, "multibot_bots_running %d\n", running)

		fmt.Fprintf(w, "# HELP multibot_bot_uptime_seconds Seconds since a running bot was started.\n")
		fmt.Fprintf(w, "# TYPE multibot_bot_uptime_seconds gauge\n")
		for _, st := range statuses {
			if st.State != botmgr.StateRunning || st.StartedAt == nil {
				continue
			}
			fmt.Fprintf(w, "multibot_bot_uptime_seconds{bot_id=%q} %.0f\n", st.BotID, time.Since(*st.StartedAt).Seconds())
		}

		fmt.Fprintf(w, "# HELP multibot_messages_total Messages handled since last flush, per bot.\n")
		fmt.Fprintf(w, "# TYPE multibot_messages_total counter\n")
		for botID, delta := range collector.Snapshot() {
			fmt.Fprintf(w, "multibot_messages_total{bot_id=%q} %d\n", botID, delta.Messages)
		}
	}
}
