package coordinator

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStopTimeout bounds each stop hook and the shard drain.
const DefaultStopTimeout = 10 * time.Second

// SignalSource subscribes to process signals. The returned cancel function
// releases the subscription.
type SignalSource interface {
	Notify(sigs ...os.Signal) (<-chan os.Signal, func(), error)
}

// OSSignals delivers real process signals through os/signal.
type OSSignals struct{}

// Notify implements SignalSource.
func (OSSignals) Notify(sigs ...os.Signal) (<-chan os.Signal, func(), error) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	return ch, func() { signal.Stop(ch) }, nil
}

// StopHook is one step of the shutdown sequence, run before the shards are
// closed.
type StopHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// ShutdownOptions configures a ShutdownCoordinator. Zero values select
// defaults: real signals, os.Exit, os.Stderr and DefaultStopTimeout.
type ShutdownOptions struct {
	Signals   SignalSource
	Exit      func(code int)
	ErrOutput io.Writer
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// ShutdownCoordinator is the only component that ends the process.
//
// Run subscribes to SIGINT and SIGTERM once. When a signal arrives the
// stop hooks run in reverse registration order (periodic tasks registered
// first are stopped last, like deferred calls), every registered shard is
// closed and the process exits with code 0. If the subscription itself
// fails the error is written to the error output and the process exits
// with code 1 without touching the shards.
type ShutdownCoordinator struct {
	registry *ShardRegistry
	signals  SignalSource
	exit     func(code int)
	errOut   io.Writer
	timeout  time.Duration
	log      zerolog.Logger

	mu    sync.Mutex
	hooks []StopHook
	once  sync.Once
}

// NewShutdownCoordinator creates a coordinator draining the shards of
// registry.
//
// Example:
//
//	sc := NewShutdownCoordinator(registry, ShutdownOptions{Logger: log})
//	sc.OnStop("latency monitor", func(context.Context) error { monitor.Stop(); return nil })
//	sc.Run(ctx) // never returns in production: os.Exit is called
func NewShutdownCoordinator(registry *ShardRegistry, opts ShutdownOptions) *ShutdownCoordinator {
	if opts.Signals == nil {
		opts.Signals = OSSignals{}
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.ErrOutput == nil {
		opts.ErrOutput = os.Stderr
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStopTimeout
	}
	return &ShutdownCoordinator{
		registry: registry,
		signals:  opts.Signals,
		exit:     opts.Exit,
		errOut:   opts.ErrOutput,
		timeout:  opts.Timeout,
		log:      opts.Logger,
	}
}

// OnStop appends a hook to the shutdown sequence.
func (c *ShutdownCoordinator) OnStop(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, StopHook{Name: name, Fn: fn})
}

// Run blocks until a termination signal arrives or ctx is cancelled, then
// performs the shutdown sequence and calls the exit function with its
// result.
func (c *ShutdownCoordinator) Run(ctx context.Context) {
	sigCh, release, err := c.signals.Notify(os.Interrupt, syscall.SIGTERM)
	if err != nil {
		fmt.Fprintf(c.errOut, "Unable to listen for shutdown signal: %v\n", err)
		c.exit(1)
		return
	}
	defer release()

	select {
	case sig := <-sigCh:
		c.log.Info().Str("signal", sig.String()).Msg("exit signal received")
	case <-ctx.Done():
		c.log.Info().Msg("shutdown requested")
	}

	c.exit(c.Shutdown())
}

// Shutdown runs the stop hooks, closes every shard and returns the exit
// code. Only the first call does any work; later calls return 0.
func (c *ShutdownCoordinator) Shutdown() int {
	code := 0
	c.once.Do(func() {
		c.mu.Lock()
		hooks := append([]StopHook(nil), c.hooks...)
		c.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			c.runHook(hooks[i])
		}

		shards := c.registry.All()
		c.log.Info().Int("shards", len(shards)).Msg("shutting down all shards")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		for _, s := range shards {
			if err := s.Shutdown(ctx); err != nil {
				c.log.Error().Err(err).Int("shard", s.ID()).Msg("shard did not shut down cleanly")
			}
		}

		c.log.Info().Msg("all shards have been killed")
		c.log.Info().Int("code", code).Msg("exit")
	})
	return code
}

func (c *ShutdownCoordinator) runHook(h StopHook) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := h.Fn(ctx); err != nil {
		c.log.Error().Err(err).Str("hook", h.Name).Msg("stop hook failed")
		return
	}
	c.log.Debug().Str("hook", h.Name).Msg("stopped")
}
