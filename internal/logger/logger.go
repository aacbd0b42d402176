// Package logger wraps zerolog with the process-wide level control and
// context-attachment helpers the rest of the server relies on.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const envLogLevel = "FABRIC_LOG_LEVEL"

var (
	global     zerolog.Logger
	levelMu    sync.Mutex
	initOnce   sync.Once
	flagLevel  string
)

// SetFlagLevel lets the CLI layer (cobra) hand the -log-level value to the
// logger before Init runs its level-resolution precedence chain.
func SetFlagLevel(level string) { flagLevel = level }

// Init initializes the global logger. Safe to call multiple times; only the
// first call constructs the writer.
func Init() {
	initOnce.Do(func() {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		lvl := detectLevel()
		global = zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
	})
}

func detectLevel() zerolog.Level {
	if lvl, ok := parseLevel(flagLevel); ok {
		return lvl
	}
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	return zerolog.InfoLevel
}

func parseLevel(s string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error", "err":
		return zerolog.ErrorLevel, true
	}
	return 0, false
}

// SetLevel changes the runtime log level.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return errUnknownLevel(level)
	}
	levelMu.Lock()
	global = global.Level(lvl)
	levelMu.Unlock()
	return nil
}

type errUnknownLevel string

func (e errUnknownLevel) Error() string { return "invalid log level: " + string(e) }

// Level returns the current runtime level as a string.
func Level() string {
	Init()
	levelMu.Lock()
	defer levelMu.Unlock()
	return global.GetLevel().String()
}

// UseWriter swaps the output writer (intended for tests). Retains the
// current level.
func UseWriter(w io.Writer) {
	Init()
	levelMu.Lock()
	lvl := global.GetLevel()
	global = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	levelMu.Unlock()
}

// Logger returns the global logger (ensures Init was called).
func Logger() *zerolog.Logger { Init(); return &global }

// WithConn attaches connection identity fields.
func WithConn(l zerolog.Logger, connID, peerAddr string) zerolog.Logger {
	return l.With().Str("conn_id", connID).Str("peer_addr", peerAddr).Logger()
}

// WithStream attaches the stream key.
func WithStream(l zerolog.Logger, streamKey string) zerolog.Logger {
	return l.With().Str("stream_key", streamKey).Logger()
}

// WithMessageMeta attaches media message metadata fields.
func WithMessageMeta(l zerolog.Logger, msgType string, csid int, msid uint32, ts uint32) zerolog.Logger {
	return l.With().Str("msg_type", msgType).Int("csid", csid).Uint32("msid", msid).Uint32("timestamp", ts).Logger()
}

// Slog returns a standard library logger for the RTMP transport layer
// (handshake, chunk I/O, dispatch, relay, hooks), which predates the
// zerolog-based core and speaks the slog key-value calling convention
// throughout. It mirrors the global level so both logging paths stay in
// sync under -log-level/FABRIC_LOG_LEVEL.
func Slog() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel()}))
}

// SlogWithConn returns a Slog logger pre-tagged with connection identity.
func SlogWithConn(connID, peerAddr string) *slog.Logger {
	return Slog().With("conn_id", connID, "peer_addr", peerAddr)
}

func slogLevel() slog.Level {
	Init()
	levelMu.Lock()
	lvl := global.GetLevel()
	levelMu.Unlock()
	switch lvl {
	case zerolog.DebugLevel:
		return slog.LevelDebug
	case zerolog.WarnLevel:
		return slog.LevelWarn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
