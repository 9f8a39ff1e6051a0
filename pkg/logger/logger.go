// Package logger holds the process-wide zerolog instance. The rest of
// the backend logs through the package-level helpers so call sites
// never thread a logger around.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the root logger. Prefer the level helpers below; Log itself is
// exported for the request middleware, which picks a level per status.
var Log zerolog.Logger

// Init configures Log for the given environment. Development renders
// human-readable console lines with caller info; anything else emits
// JSON for the log pipeline.
func Init(env string) {
	zerolog.TimeFieldFormat = time.RFC3339

	if env == "development" {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
			With().
			Timestamp().
			Caller().
			Logger()
		return
	}

	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

func Info() *zerolog.Event  { return Log.Info() }
func Warn() *zerolog.Event  { return Log.Warn() }
func Error() *zerolog.Event { return Log.Error() }
func Debug() *zerolog.Event { return Log.Debug() }
func Fatal() *zerolog.Event { return Log.Fatal() }
