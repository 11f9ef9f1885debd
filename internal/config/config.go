package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"peerprep"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres Postgres
	Redis    Redis
	Auth     Auth
	Question Question
	Matching Matching
	Collab   Collab
	History  History
	CORS     CORS
}

// Postgres captures connection info for the history store.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// ConnString renders a libpq-style connection string.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// DSN renders a pgxpool connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("%s pool_max_conns=%d", p.ConnString(), p.MaxConns)
}

// Redis carries the history channel transport.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Auth configures how upstream identity is read off incoming sockets.
// An empty secret means identity headers set by the gateway are trusted.
type Auth struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
}

// Question points at the question catalog service.
type Question struct {
	BaseURL      string        `env:"QUESTION_SERVICE_URL" envDefault:"http://localhost:4003"`
	FetchTimeout time.Duration `env:"QUESTION_FETCH_TIMEOUT" envDefault:"4s"`
}

// Matching governs queue staleness.
type Matching struct {
	StaleAfter    time.Duration `env:"MATCH_STALE_AFTER" envDefault:"30s"`
	SweepInterval time.Duration `env:"MATCH_SWEEP_INTERVAL" envDefault:"10s"`
}

// Collab governs idle eviction of room connections.
type Collab struct {
	IdleTimeout       time.Duration `env:"COLLAB_IDLE_TIMEOUT" envDefault:"30m"`
	IdleSweepInterval time.Duration `env:"COLLAB_IDLE_SWEEP_INTERVAL" envDefault:"60s"`
}

// History toggles best-effort session history writes.
type History struct {
	Enabled bool   `env:"HISTORY_ENABLED" envDefault:"true"`
	Channel string `env:"HISTORY_CHANNEL" envDefault:"history:records"`
}

// CORS lists origins allowed to open websockets.
type CORS struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173,http://127.0.0.1:3000,http://127.0.0.1:5173"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: false}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPostgres parses only the Postgres settings, for tools that need nothing else.
func LoadPostgres() (Postgres, error) {
	var pg Postgres
	if err := env.Parse(&pg); err != nil {
		return Postgres{}, fmt.Errorf("parse postgres config: %w", err)
	}
	return pg, nil
}

func (a *App) validate() error {
	if a.Matching.StaleAfter <= 0 {
		return fmt.Errorf("MATCH_STALE_AFTER must be positive")
	}
	if a.Matching.SweepInterval <= 0 {
		return fmt.Errorf("MATCH_SWEEP_INTERVAL must be positive")
	}
	if a.Collab.IdleTimeout <= 0 || a.Collab.IdleSweepInterval <= 0 {
		return fmt.Errorf("collab idle timeout and sweep interval must be positive")
	}
	return nil
}
