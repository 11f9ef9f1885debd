package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/peerprep/internal/config"
	"github.com/gokatarajesh/peerprep/internal/logging"
	httperrors "github.com/gokatarajesh/peerprep/pkg/http/errors"
)

// Routes are the feature handlers mounted by NewHTTPServer. Nil entries are skipped.
type Routes struct {
	MatchingWS     http.HandlerFunc
	CollabWS       http.HandlerFunc
	MatchingStatus http.HandlerFunc
	History        http.HandlerFunc
}

// Stats reports live counters for the health endpoint.
type Stats interface {
	QueueLength() int
	RoomCount() int
}

// NewUpgrader builds a WebSocket upgrader that only accepts the listed
// origins. Requests without an Origin header come from non-browser clients
// and are allowed; "*" allows everything.
func NewUpgrader(allowedOrigins []string, logger zerolog.Logger) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			if _, ok := allowed[origin]; ok {
				return true
			}
			logger.Warn().Str("origin", origin).Str("path", r.URL.Path).Msg("websocket origin rejected")
			return false
		},
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	QueueLength int    `json:"queueLength"`
	Rooms       int    `json:"rooms"`
}

// NewHTTPServer wires health, metrics and feature routes.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, redis *redis.Client, stats Stats, routes Routes) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: NewMux(logger, pingFunc(pool, redis), stats, routes),
	}
}

// NewMux builds the route table. ping may be nil when no dependencies are wired.
func NewMux(logger zerolog.Logger, ping func(context.Context) error, stats Stats, routes Routes) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if stats != nil {
			resp.QueueLength = stats.QueueLength()
			resp.Rooms = stats.RoomCount()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.IntoContext(r.Context(), logger)
		if ping != nil {
			if err := ping(ctx); err != nil {
				l := logging.FromContext(ctx)
				l.Error().Err(err).Msg("dependency ping failed")
				httperrors.RespondError(w, http.StatusBadGateway, httperrors.ErrCodeUpstreamError, "upstream error")
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	mount(mux, "/ws/matching", routes.MatchingWS)
	mount(mux, "/ws/collab", routes.CollabWS)
	mount(mux, "/v1/matching/status", routes.MatchingStatus)
	mount(mux, "/v1/history", routes.History)

	return mux
}

func mount(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	if h == nil {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeServiceUnavailable, "endpoint not configured")
		})
		return
	}
	mux.HandleFunc(pattern, h)
}

func pingFunc(pool *pgxpool.Pool, redis *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
		}
		if redis != nil {
			if err := redis.Ping(ctx).Err(); err != nil {
				return err
			}
		}
		return nil
	}
}
