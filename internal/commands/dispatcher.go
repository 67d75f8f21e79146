package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/Sedorikku1949/MioEngine/internal/i18n"
	"github.com/Sedorikku1949/MioEngine/internal/metrics"
	"github.com/Sedorikku1949/MioEngine/internal/shard"
	"github.com/Sedorikku1949/MioEngine/internal/state"
)

// Shards resolves the shard a message arrived on.
type Shards interface {
	Get(id int) (shard.Shard, bool)
	Count() int
}

// Options configures a Dispatcher.
type Options struct {
	State   *state.State
	Table   *Table
	Shards  Shards
	Catalog *i18n.Catalog
	Locale  string
	Version string
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	// MemoryUsage reports the process resident set size. Defaults to a
	// gopsutil probe of the current process.
	MemoryUsage func(ctx context.Context) (uint64, error)
}

// Dispatcher turns inbound messages into command invocations.
type Dispatcher struct {
	state   *state.State
	table   *Table
	shards  Shards
	catalog *i18n.Catalog
	locale  string
	version string
	memory  func(ctx context.Context) (uint64, error)
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewDispatcher validates opts and returns a dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.State == nil {
		return nil, errors.New("commands: nil state")
	}
	if opts.Table == nil {
		return nil, errors.New("commands: nil table")
	}
	if opts.Shards == nil {
		return nil, errors.New("commands: nil shard lookup")
	}
	if opts.Catalog == nil {
		opts.Catalog = i18n.New(opts.Locale)
	}
	if opts.MemoryUsage == nil {
		opts.MemoryUsage = processRSS
	}
	return &Dispatcher{
		state:   opts.State,
		table:   opts.Table,
		shards:  opts.Shards,
		catalog: opts.Catalog,
		locale:  opts.Locale,
		version: opts.Version,
		memory:  opts.MemoryUsage,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}, nil
}

// Result describes what Dispatch did with a message.
type Result struct {
	Dispatched bool
	ID         string
	Command    string
	Kind       ErrorKind
	Err        error
}

// Dispatch parses msg and, if it is a command, runs it to completion.
// Failures are classified and logged here; they never escape as errors and
// a panicking handler is recovered.
func (d *Dispatcher) Dispatch(ctx context.Context, msg shard.Message) Result {
	if msg.Author.Bot {
		return Result{}
	}
	inv, ok := Parse(d.state.Prefix(), msg.Content)
	if !ok {
		return Result{}
	}

	res := Result{Dispatched: true, ID: xid.New().String(), Command: inv.Name}
	log := d.log.With().
		Str("req", res.ID).
		Str("cmd", inv.Name).
		Int("shard", msg.ShardID).
		Logger()

	cmd, found := d.table.Lookup(inv.Name)
	if !found {
		res.Err = &Error{Kind: KindCommandNotFound, Cause: fmt.Errorf("no command named %q", inv.Name)}
		res.Kind = KindCommandNotFound
		d.classify(log, state.ModeProd, msg, res)
		return res
	}

	req := &Request{
		ID:         res.ID,
		Snapshot:   d.state.Snapshot(),
		Message:    msg,
		Args:       inv.Args,
		Version:    d.version,
		dispatcher: d,
		log:        log,
	}
	res.Err = d.run(ctx, cmd, req)
	res.Kind = KindOf(res.Err)
	d.classify(log, req.Snapshot.HandlerMode, msg, res)
	return res
}

func (d *Dispatcher) run(ctx context.Context, cmd Command, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindUnknown, Cause: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
		}
	}()
	return cmd.Run(ctx, req)
}

// classify logs the outcome of one dispatch at the severity of its kind.
func (d *Dispatcher) classify(log zerolog.Logger, mode state.HandlerMode, msg shard.Message, res Result) {
	label := res.Command
	if res.Kind == KindCommandNotFound {
		label = "unknown"
	}
	d.metrics.CommandOutcome(label, res.Kind.String())

	switch res.Kind {
	case KindNone:
		if mode.IsDev() {
			log.Debug().Str("author", msg.Author.Tag).Msg("command used")
		}
	case KindCommandNotFound, KindTooEarly:
		log.Warn().Str("kind", res.Kind.String()).Msg(causeOf(res.Err))
	case KindTreatedException:
	default:
		log.Error().Str("kind", res.Kind.String()).Err(res.Err).Msg("command failed")
	}
}

func causeOf(err error) string {
	var cmdErr *Error
	if errors.As(err, &cmdErr) && cmdErr.Cause != nil {
		return cmdErr.Cause.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Request is everything a handler may use. Snapshot is a private copy of
// the shared state taken when the command was routed.
type Request struct {
	ID       string
	Snapshot state.Snapshot
	Message  shard.Message
	Args     []string
	Version  string

	dispatcher *Dispatcher
	log        zerolog.Logger
}

// Reply sends content as a reply to the invoking message. A send failure
// is logged as a warning and never fails the command.
func (r *Request) Reply(ctx context.Context, content string) error {
	s, ok := r.dispatcher.shards.Get(r.Message.ShardID)
	if !ok {
		r.log.Warn().
			Str("kind", KindMessageNotSent.String()).
			Int("shard", r.Message.ShardID).
			Msg("reply dropped, shard is not registered")
		return nil
	}
	if err := s.Reply(ctx, r.Message, content); err != nil {
		r.log.Warn().Str("kind", KindMessageNotSent.String()).Err(err).Msg("reply not sent")
	}
	return nil
}

// T translates key in the dispatcher's locale.
func (r *Request) T(key string, args ...any) string {
	return r.dispatcher.catalog.T(r.dispatcher.locale, key, args...)
}

// Table returns the registration table the request was routed through.
func (r *Request) Table() *Table { return r.dispatcher.table }

// ShardCount returns the number of active shards.
func (r *Request) ShardCount() int { return r.dispatcher.shards.Count() }

// MemoryUsage returns the resident set size of the process.
func (r *Request) MemoryUsage(ctx context.Context) (uint64, error) {
	return r.dispatcher.memory(ctx)
}
