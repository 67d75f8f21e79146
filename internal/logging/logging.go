// Package logging builds the zerolog loggers shared by every MioEngine
// component. Each component receives a child logger tagged with a "sys"
// subsystem so log lines can be traced back to their emitter.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SubsystemKey is the field carrying the emitting component.
const SubsystemKey = "sys"

// Format selects the log encoding.
type Format string

const (
	// FormatConsole renders human-readable, colourised lines.
	FormatConsole Format = "console"
	// FormatJSON renders one JSON object per line.
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	Level   string    // trace, debug, info, warn, error; empty means info
	Format  Format    // console or json; empty means console
	Writer  io.Writer // defaults to os.Stderr
	NoColor bool
}

// New returns a root logger configured from opts. An unknown level or
// format is reported as an error rather than silently downgraded.
func New(opts Options) (zerolog.Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := zerolog.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}

	switch opts.Format {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "02/01/2006 15:04:05",
			NoColor:    opts.NoColor,
		}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// WithSubsystem returns a child logger tagged with the given subsystem.
// Nested subsystems are joined with a dot, mirroring the component tree.
func WithSubsystem(l zerolog.Logger, parts ...string) zerolog.Logger {
	sys := Subsystem(parts...)
	if sys == "" {
		return l
	}
	return l.With().Str(SubsystemKey, sys).Logger()
}

// Subsystem builds a dot-delimited subsystem path, skipping empty parts.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, ".")
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Elapsed formats a startup duration the way the boot banner prints it.
func Elapsed(since time.Time, now time.Time) string {
	d := now.Sub(since)
	return fmt.Sprintf("%dms (%dµs)", d.Milliseconds(), d.Microseconds())
}
