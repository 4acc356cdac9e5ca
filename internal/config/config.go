// Package config declares the finalize-time options for a cell machine
// application: the app-level toggles (name, proto emission, history size,
// recovery behavior) and per-stream broker defaults. Grounded on the
// teacher's main.go godotenv.Load()-then-getenv-with-default style,
// generalized from scattered os.Getenv calls into one typed, validated
// struct assembled once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"vention.dev/cellrt/internal/broker"
)

// StreamDefaults configures one named broker topic's distribution
// behavior, set either by an explicit per-stream override or the app-wide
// default.
type StreamDefaults struct {
	Replay       bool
	QueueMaxSize int
	Policy       broker.Policy
}

// App holds every finalize-time option for one running cell application.
type App struct {
	// Name identifies this application instance, used as a metric and log
	// label and as the default RPC service name.
	Name string

	// EmitProto and ProtoPath are read from the environment and kept here;
	// nothing in this module reads them, and no .proto file is written.
	// The wire protocol itself is JSON, not protobuf-encoded.
	EmitProto bool
	ProtoPath string

	// HistorySize bounds how many transition history entries each FSM
	// instance keeps.
	HistorySize int

	// EnableLastStateRecovery turns on the last-recoverable-state check
	// described in internal/fsm's recovery tracker.
	EnableLastStateRecovery bool

	// StreamDefault is applied to any topic the application creates
	// without an explicit per-stream override.
	StreamDefault StreamDefaults

	// StreamOverrides maps a stream name to its own defaults, taking
	// precedence over StreamDefault.
	StreamOverrides map[string]StreamDefaults

	// HTTPAddr is the address the RPC router's HTTP server listens on.
	HTTPAddr string

	// JWTSecret signs and verifies the actor identity header the router
	// requires on every call (internal/rpcrouter/auth.go).
	JWTSecret string

	// RateLimitPerMinute and RateLimitBurst configure the router's
	// token-bucket limiter (internal/rpcrouter/ratelimit.go).
	// RateLimitPerMinute <= 0 means unlimited; RateLimitBurst <= 0 is
	// treated as a burst of 1.
	RateLimitPerMinute int
	RateLimitBurst     int
}

// Load reads a .env file (if present) then environment variables into an
// App, applying defaults for anything unset. A missing .env file is not an
// error — the teacher's main.go treats it the same way, falling back to
// whatever is already in the process environment (e.g. a container's
// injected env vars).
func Load() (*App, error) {
	if err := godotenv.Load(); err != nil {
		// Matches the teacher's own warning-not-fatal handling: .env is a
		// convenience for local development, never required.
		fmt.Fprintln(os.Stderr, "config: no .env file found, using process environment")
	}

	app := &App{
		Name:                    getEnv("CELLRT_NAME", "cellrt"),
		EmitProto:               getEnvBool("CELLRT_EMIT_PROTO", false),
		ProtoPath:               getEnv("CELLRT_PROTO_PATH", "./cellrt.proto"),
		HistorySize:             getEnvInt("CELLRT_HISTORY_SIZE", 1000),
		EnableLastStateRecovery: getEnvBool("CELLRT_ENABLE_LAST_STATE_RECOVERY", true),
		StreamDefault: StreamDefaults{
			Replay:       getEnvBool("CELLRT_STREAM_REPLAY", true),
			QueueMaxSize: getEnvInt("CELLRT_STREAM_QUEUE_MAXSIZE", 1),
			Policy:       broker.Policy(getEnv("CELLRT_STREAM_POLICY", string(broker.PolicyLatest))),
		},
		StreamOverrides:    make(map[string]StreamDefaults),
		HTTPAddr:           getEnv("CELLRT_HTTP_ADDR", ":8080"),
		JWTSecret:          getEnv("CELLRT_JWT_SECRET", ""),
		RateLimitPerMinute: getEnvInt("CELLRT_RATE_LIMIT_PER_MINUTE", 0),
		RateLimitBurst:     getEnvInt("CELLRT_RATE_LIMIT_BURST", 10),
	}

	if !app.StreamDefault.Policy.Valid() {
		return nil, fmt.Errorf("config: invalid CELLRT_STREAM_POLICY %q", app.StreamDefault.Policy)
	}
	if app.HistorySize <= 0 {
		return nil, fmt.Errorf("config: CELLRT_HISTORY_SIZE must be positive, got %d", app.HistorySize)
	}

	return app, nil
}

// StreamConfig resolves the effective defaults for a named stream,
// preferring an explicit override over StreamDefault.
func (a *App) StreamConfig(name string) StreamDefaults {
	if d, ok := a.StreamOverrides[name]; ok {
		return d
	}
	return a.StreamDefault
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
