package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	initOnce     sync.Once
)

// InitLogger initializes the global structured logger. Only the first call has
// any effect.
func InitLogger(level string, pretty bool) {
	initOnce.Do(func() {
		var out io.Writer = os.Stdout
		if pretty {
			out = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
		}

		zerolog.SetGlobalLevel(ParseLevel(level))
		globalLogger = zerolog.New(out).With().Timestamp().Logger()
		log.Logger = globalLogger
	})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	InitLogger("info", false)
	return globalLogger
}

// WithSession creates a logger carrying a listening session ID. An empty ID
// leaves the logger untouched.
func WithSession(logger zerolog.Logger, sessionID string) zerolog.Logger {
	if sessionID == "" {
		return logger
	}
	return logger.With().Str("session_id", sessionID).Logger()
}

// NewSessionID generates a new listening session ID
func NewSessionID() string {
	return uuid.New().String()
}
