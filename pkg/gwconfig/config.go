// Package gwconfig reads process configuration from the environment,
// following the teacher's cmd/desktop-bridge os.Getenv-plus-default
// idiom rather than pulling in a configuration-file library (no such
// library appears anywhere in the teacher's dependency graph).
package gwconfig

import (
	"os"
	"strconv"
)

// Config holds the gateway process's runtime configuration.
type Config struct {
	// TCPAddr is the classic textual-protocol listener address.
	TCPAddr string
	// WSAddr is the WebSocket listener address.
	WSAddr string
	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string
	// RecordingDir, when non-empty, mirrors each connection's outbound
	// instruction stream into a transcript file under this directory.
	RecordingDir string
	// PromotionIntervalMS is the pending-user promotion interval, in
	// milliseconds (spec.md default: 250).
	PromotionIntervalMS int
	// MaxStreamsPerUser / MaxObjectsPerUser cap per-user table size.
	MaxStreamsPerUser int
	MaxObjectsPerUser int
}

// Default returns the gateway's baked-in defaults.
func Default() Config {
	return Config{
		TCPAddr:             ":4822",
		WSAddr:              ":4823",
		MetricsAddr:         "",
		RecordingDir:        "",
		PromotionIntervalMS: 250,
		MaxStreamsPerUser:   64,
		MaxObjectsPerUser:   64,
	}
}

// FromEnv overlays environment variables onto Default(), the same
// "os.Getenv with a fallback default" idiom the teacher's
// cmd/desktop-bridge entrypoint uses.
func FromEnv() Config {
	c := Default()
	if v := os.Getenv("DESKGATE_TCP_ADDR"); v != "" {
		c.TCPAddr = v
	}
	if v := os.Getenv("DESKGATE_WS_ADDR"); v != "" {
		c.WSAddr = v
	}
	if v := os.Getenv("DESKGATE_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("DESKGATE_RECORDING_DIR"); v != "" {
		c.RecordingDir = v
	}
	if v := os.Getenv("DESKGATE_PROMOTION_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PromotionIntervalMS = n
		}
	}
	if v := os.Getenv("DESKGATE_MAX_STREAMS_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxStreamsPerUser = n
		}
	}
	if v := os.Getenv("DESKGATE_MAX_OBJECTS_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxObjectsPerUser = n
		}
	}
	return c
}
