package storage

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Sedorikku1949/MioEngine/internal/metrics"
)

// Saver is anything that can be persisted on a schedule.
type Saver interface {
	Save() (int, error)
}

// AutosaveOptions configures NewAutosaver.
type AutosaveOptions struct {
	Schedule string // cron expression, "@every 5m" style descriptors allowed
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Autosaver saves an archive on a cron schedule.
type Autosaver struct {
	saver   Saver
	cron    *cron.Cron
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewAutosaver validates the schedule and prepares the job. Nothing runs
// until Start.
func NewAutosaver(saver Saver, opts AutosaveOptions) (*Autosaver, error) {
	as := &Autosaver{
		saver:   saver,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if _, err := as.cron.AddFunc(opts.Schedule, func() { as.SaveNow() }); err != nil {
		return nil, fmt.Errorf("autosave schedule %q: %w", opts.Schedule, err)
	}
	return as, nil
}

// Start runs the schedule in the background.
func (as *Autosaver) Start() {
	as.cron.Start()
	if entries := as.cron.Entries(); len(entries) > 0 {
		as.logger.Info().Time("next", entries[0].Next).Msg("archive autosave scheduled")
	}
}

// SaveNow performs one save and records its outcome.
func (as *Autosaver) SaveNow() error {
	n, err := as.saver.Save()
	as.metrics.ArchiveSaved(err)
	if err != nil {
		as.logger.Error().Err(err).Msg("failed to save archive")
		return err
	}
	as.logger.Debug().Str("size", humanize.Bytes(uint64(n))).Msg("archive autosaved")
	return nil
}

// Stop halts the schedule and waits for a running save, bounded by ctx.
func (as *Autosaver) Stop(ctx context.Context) error {
	done := as.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
