// Package gwlog is the gateway's structured logging facade. It
// replaces the original implementation's variadic vprintf-style log
// sink (spec.md §9) with a key-value structured logger built on
// zerolog.
package gwlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger behind a small, stable surface so the
// rest of the gateway never imports zerolog directly.
type Logger struct {
	z zerolog.Logger
}

// New creates a Logger writing to w (os.Stdout if nil), tagging every
// event with a timestamp and a "component" field set to component.
func New(w io.Writer, component string) Logger {
	if w == nil {
		w = os.Stdout
	}
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return Logger{z: z}
}

// With returns a copy of l scoped with an additional key-value pair,
// mirroring the teacher's `logger.With("session_id", id)` idiom.
func (l Logger) With(key string, value any) Logger {
	return Logger{z: l.z.With().Interface(key, value).Logger()}
}

func (l Logger) Debug(msg string, kv ...any) { l.event(l.z.Debug(), msg, kv) }
func (l Logger) Info(msg string, kv ...any)  { l.event(l.z.Info(), msg, kv) }
func (l Logger) Warn(msg string, kv ...any)  { l.event(l.z.Warn(), msg, kv) }
func (l Logger) Error(msg string, kv ...any) { l.event(l.z.Error(), msg, kv) }

func (l Logger) event(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
