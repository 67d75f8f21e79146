package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sedorikku1949/MioEngine/internal/admin"
	"github.com/Sedorikku1949/MioEngine/internal/commands"
	"github.com/Sedorikku1949/MioEngine/internal/config"
	"github.com/Sedorikku1949/MioEngine/internal/coordinator"
	"github.com/Sedorikku1949/MioEngine/internal/i18n"
	"github.com/Sedorikku1949/MioEngine/internal/logging"
	"github.com/Sedorikku1949/MioEngine/internal/metrics"
	"github.com/Sedorikku1949/MioEngine/internal/shard"
	"github.com/Sedorikku1949/MioEngine/internal/state"
	"github.com/Sedorikku1949/MioEngine/internal/storage"
)

// gatewayShard is a shard that still has to connect.
type gatewayShard interface {
	shard.Shard
	Open() error
}

type shardFactory func(opts shard.DiscordOptions) (gatewayShard, error)

// runDeps are the process-level collaborators of the run command.
type runDeps struct {
	stdout   io.Writer
	stderr   io.Writer
	newShard shardFactory
	signals  coordinator.SignalSource
	secrets  func() (config.Secrets, error)
	// processStart is the origin of both startup timing lines; zero
	// means the package-level processStart.
	processStart time.Time
}

func defaultRunDeps(stdout, stderr io.Writer) runDeps {
	return runDeps{
		stdout: stdout,
		stderr: stderr,
		newShard: func(opts shard.DiscordOptions) (gatewayShard, error) {
			return shard.NewDiscord(opts)
		},
		signals:      coordinator.OSSignals{},
		secrets:      config.LoadSecrets,
		processStart: processStart,
	}
}

func newRunCommand(configPath *string, deps runDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect the shards and serve commands until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return withCode(runBot(cmd.Context(), *configPath, cmd.Flags(), deps))
		},
	}
	f := cmd.Flags()
	f.String("prefix", "", "command prefix")
	f.Bool("dev", false, "development mode")
	f.Bool("debug", false, "debug mode")
	f.Bool("maintenance", false, "start in maintenance")
	f.Int("shards", 0, "number of gateway shards")
	f.String("admin-listen", "", "admin HTTP listen address, empty disables it")
	f.String("log-level", "", "trace, debug, info, warn or error")
	f.String("log-format", "", "console or json")
	f.String("archive", "", "encrypted archive path")
	return cmd
}

// runBot boots the engine and blocks until the shutdown coordinator
// decides the exit code.
func runBot(ctx context.Context, configPath string, flags *pflag.FlagSet, deps runDeps) (int, error) {
	start := deps.processStart
	if start.IsZero() {
		start = processStart
	}

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return exitConfig, fmt.Errorf("invalid configuration: %w", err)
	}
	secrets, err := deps.secrets()
	if err != nil {
		return exitConfig, err
	}
	root, err := logging.New(logging.Options{
		Level:  cfg.LogLevel(),
		Format: logging.Format(cfg.Log.Format),
		Writer: deps.stderr,
	})
	if err != nil {
		return exitConfig, fmt.Errorf("invalid configuration: %w", err)
	}
	root = root.With().Str("app", "mio").Logger()
	engineLog := logging.WithSubsystem(root, "MioEngine")

	if cfg.Client.Dev {
		engineLog.Info().Str("version", cfg.Client.Version).Msg("starting in development mode")
	} else {
		engineLog.Info().Str("version", cfg.Client.Version).Msg("starting in production mode")
	}
	engineLog.Debug().
		Bool("auto_status", cfg.Params.AutoStatus).
		Msg("auto_status is not used, status rotation always runs")

	configLog := logging.WithSubsystem(root, "ConfigReader")
	for _, e := range cfg.UnknownStatuses() {
		configLog.Warn().
			Str("status_type", e.StatusType).
			Str("message", e.Message).
			Msg("status type was unknown, it will be skipped")
	}

	st, err := state.New(cfg.StateOptions(start))
	if err != nil {
		return exitConfig, fmt.Errorf("invalid configuration: %w", err)
	}
	m := metrics.New()

	archive, err := openArchive(cfg, secrets, logging.WithSubsystem(root, "ArchiveSystem"))
	if err != nil {
		engineLog.Error().Err(err).Msg("archive is unusable")
		return exitArchive, nil
	}

	catalog, err := loadCatalog(cfg.I18n, logging.WithSubsystem(root, "I18n"))
	if err != nil {
		return exitFailure, err
	}

	table, err := commands.NewTable(commands.Builtins()...)
	if err != nil {
		return exitFailure, err
	}
	registry := coordinator.NewShardRegistry(cfg.Gateway.ShardCount)
	dispatcher, err := commands.NewDispatcher(commands.Options{
		State:   st,
		Table:   table,
		Shards:  registry,
		Catalog: catalog,
		Locale:  cfg.I18n.DefaultLocale,
		Version: cfg.Client.Version,
		Metrics: m,
		Logger:  logging.WithSubsystem(root, "CommandHandler"),
	})
	if err != nil {
		return exitFailure, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var readyOnce sync.Once
	onReady := func(int) {
		readyOnce.Do(func() {
			engineLog.Info().Msgf("Process started in %s", logging.Elapsed(start, time.Now()))
		})
	}

	gateways := make([]gatewayShard, 0, cfg.Gateway.ShardCount)
	for i := 0; i < cfg.Gateway.ShardCount; i++ {
		s, err := deps.newShard(shard.DiscordOptions{
			Token:      secrets.Token,
			ShardID:    i,
			ShardCount: cfg.Gateway.ShardCount,
			Logger:     logging.WithSubsystem(root, "Shard", strconv.Itoa(i)),
			OnMessage: func(msg shard.Message) {
				dispatcher.Dispatch(runCtx, msg)
			},
			OnReady: onReady,
		})
		if err != nil {
			return exitConfig, fmt.Errorf("invalid configuration: %w", err)
		}
		if err := registry.Register(s); err != nil {
			return exitFailure, err
		}
		gateways = append(gateways, s)
	}

	monitor := coordinator.NewLatencyMonitor(st, registry, coordinator.MonitorOptions{
		Interval:      cfg.Monitor.Interval,
		WarnThreshold: cfg.Monitor.WarnThreshold,
		Logger:        logging.WithSubsystem(root, "ShardLatency"),
		Metrics:       m,
	})
	rotator := coordinator.NewStatusRotator(st, registry, coordinator.RotatorOptions{
		Interval: cfg.RotationInterval(),
		Logger:   logging.WithSubsystem(root, "StatusLoop"),
		Metrics:  m,
	})

	exitCh := make(chan int, 1)
	shutdown := coordinator.NewShutdownCoordinator(registry, coordinator.ShutdownOptions{
		Signals:   deps.signals,
		Exit:      func(code int) { exitCh <- code },
		ErrOutput: deps.stderr,
		Logger:    engineLog,
	})

	// Hooks run in reverse: rotation stops first, the final archive save last.
	if cfg.Security.AutoSaveArchive {
		autosaver, err := storage.NewAutosaver(archive, storage.AutosaveOptions{
			Schedule: cfg.Security.AutosaveSchedule,
			Logger:   logging.WithSubsystem(root, "ArchiveSystem"),
			Metrics:  m,
		})
		if err != nil {
			return exitConfig, fmt.Errorf("invalid configuration: %w", err)
		}
		shutdown.OnStop("archive", func(context.Context) error {
			return autosaver.SaveNow()
		})
		autosaver.Start()
		shutdown.OnStop("autosave", autosaver.Stop)
	}

	if cfg.Admin.Listen != "" {
		adminSrv := admin.New(admin.Options{
			Addr:    cfg.Admin.Listen,
			State:   st,
			Shards:  registry,
			Archive: archive,
			Metrics: m,
			Version: cfg.Client.Version,
			Logger:  logging.WithSubsystem(root, "Admin"),
		})
		if err := adminSrv.Start(); err != nil {
			shutdown.Shutdown()
			return exitFailure, fmt.Errorf("admin listen: %w", err)
		}
		shutdown.OnStop("admin", adminSrv.Shutdown)
	}
	shutdown.OnStop("latency monitor", func(context.Context) error {
		monitor.Stop()
		return nil
	})
	shutdown.OnStop("status rotation", func(context.Context) error {
		rotator.Stop()
		return nil
	})

	engineLog.Info().Msgf("System initialized in %s", logging.Elapsed(start, time.Now()))

	for _, s := range gateways {
		if err := s.Open(); err != nil {
			engineLog.Error().Err(err).Int("shard", s.ID()).Msg("failed to connect shard")
			shutdown.Shutdown()
			return exitFailure, nil
		}
	}

	go monitor.Start(runCtx)
	go rotator.Start(runCtx)
	go shutdown.Run(ctx)

	return <-exitCh, nil
}

func openArchive(cfg config.Config, secrets config.Secrets, log zerolog.Logger) (*storage.Archive, error) {
	key, err := storage.LoadKey(cfg.Security.ArchivePath, secrets.ArchiveKey)
	if err != nil {
		return nil, err
	}
	return storage.OpenArchive(storage.ArchiveOptions{
		Path:    cfg.Security.ArchivePath,
		Key:     key,
		Rewrite: cfg.Security.RewriteArchiveIfInvalid,
		Logger:  log,
	})
}

// loadCatalog builds the embedded catalog and adds the files of the
// locales directory. A missing directory is not an error.
func loadCatalog(cfg config.I18nConfig, log zerolog.Logger) (*i18n.Catalog, error) {
	catalog, err := i18n.NewDefault(cfg.DefaultLocale)
	if err != nil {
		return nil, err
	}
	if cfg.LocalesDir == "" {
		return catalog, nil
	}
	loaded, err := catalog.LoadDir(cfg.LocalesDir)
	if errors.Is(err, fs.ErrNotExist) && len(loaded) == 0 {
		log.Debug().Str("dir", cfg.LocalesDir).Msg("no locales directory")
		return catalog, nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("some locale files were not loaded")
	}
	log.Info().Strs("languages", catalog.Languages()).Msg("languages loaded")
	return catalog, nil
}
