package state

import (
	"strings"
	"time"
)

// ActivityKind is the kind of presence activity shown for the bot.
// ActivityUnknown is a first-class member produced for any unrecognised
// configuration value; it is never applied to a shard.
type ActivityKind int

const (
	// ActivityUnknown marks a status whose kind could not be recognised.
	ActivityUnknown ActivityKind = iota
	// ActivityPlaying renders as "Playing <message>".
	ActivityPlaying
	// ActivityStreaming renders as "Streaming <message>" and carries a URL.
	ActivityStreaming
	// ActivityListening renders as "Listening to <message>".
	ActivityListening
	// ActivityWatching renders as "Watching <message>".
	ActivityWatching
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityPlaying:
		return "playing"
	case ActivityStreaming:
		return "streaming"
	case ActivityListening:
		return "listening"
	case ActivityWatching:
		return "watching"
	default:
		return "unknown"
	}
}

// ParseActivityKind maps a configuration value onto an ActivityKind.
// Matching is case-insensitive; anything else yields ActivityUnknown.
func ParseActivityKind(s string) ActivityKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playing", "game":
		return ActivityPlaying
	case "streaming":
		return ActivityStreaming
	case "listening":
		return ActivityListening
	case "watching":
		return ActivityWatching
	default:
		return ActivityUnknown
	}
}

// Status is one presence value: a message and how it is displayed.
type Status struct {
	Message string       `json:"message"`
	Kind    ActivityKind `json:"kind"`
}

// HandlerMode is derived once from the dev/debug flags when the state is built.
type HandlerMode int

const (
	// ModeInDev is selected when the instance runs in development mode.
	ModeInDev HandlerMode = iota
	// ModeDebug is selected when debug is on and dev is off.
	ModeDebug
	// ModeProd is the default production mode.
	ModeProd
)

func (m HandlerMode) String() string {
	switch m {
	case ModeInDev:
		return "in_dev"
	case ModeDebug:
		return "debug"
	default:
		return "prod"
	}
}

// IsDev reports whether command traces should be emitted.
func (m HandlerMode) IsDev() bool {
	return m == ModeInDev || m == ModeDebug
}

// DeriveHandlerMode picks the handler mode for a dev/debug flag pair.
func DeriveHandlerMode(dev, debug bool) HandlerMode {
	switch {
	case dev:
		return ModeInDev
	case debug:
		return ModeDebug
	default:
		return ModeProd
	}
}

// LatencyRecord is the last round-trip sample of one shard and whether a
// high-latency warning is currently active for it.
type LatencyRecord struct {
	Ping   time.Duration `json:"ping"`
	Warned bool          `json:"warned"`
}

// Flags are the operational override switches.
type Flags struct {
	Maintenance bool `json:"maintenance"`
	Dev         bool `json:"dev"`
	Debug       bool `json:"debug"`
}
