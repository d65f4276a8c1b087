package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/errwatch/internal/aggregate"
	"github.com/tinytelemetry/errwatch/internal/backup"
	"github.com/tinytelemetry/errwatch/internal/classify"
	"github.com/tinytelemetry/errwatch/internal/dashboard"
	"github.com/tinytelemetry/errwatch/internal/duckdb"
	"github.com/tinytelemetry/errwatch/internal/explain"
	"github.com/tinytelemetry/errwatch/internal/generator"
	"github.com/tinytelemetry/errwatch/internal/httpserver"
	"github.com/tinytelemetry/errwatch/internal/logsource"
	"github.com/tinytelemetry/errwatch/internal/model"
	"github.com/tinytelemetry/errwatch/internal/monitor"
	"github.com/tinytelemetry/errwatch/internal/notify"
	"github.com/tinytelemetry/errwatch/internal/query"
	"github.com/tinytelemetry/errwatch/internal/socketrpc"
	"github.com/tinytelemetry/errwatch/internal/sqlite"
)

// runServer wires the pipeline and blocks until SIGINT/SIGTERM.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	loc := model.CivilZone(cfg.CivilUTCOffset)

	// Store failure is the only fatal startup error.
	store, err := openStore(cfg, loc)
	if err != nil {
		return fmt.Errorf("failed to initialize %s store: %w", cfg.StoreDriver, err)
	}
	defer store.Close()
	if total, err := store.TotalCount(); err == nil {
		log.Printf("server: %s store %s holds %d records", cfg.StoreDriver, cfg.DBPath, total)
	}

	var writer model.RecordWriter = store
	natsActive := false
	if cfg.NATSURL != "" {
		pub, err := notify.Connect(cfg.NATSURL)
		if err != nil {
			log.Printf("notify: disabled: %v", err)
		} else {
			defer pub.Close()
			writer = notify.NewWriter(store, pub, cfg.NATSSubject)
			natsActive = true
		}
	}

	backupManager := startBackups(cfg, store)
	if backupManager != nil {
		defer backupManager.Stop()
	}

	logsource.SetPollInterval(cfg.MonitorPollInterval)
	gen, mon := buildWorkers(cfg, writer, loc)
	workers := map[string]httpserver.Worker{}
	if gen != nil {
		workers["generator"] = gen
		defer gen.Stop()
		if cfg.GeneratorEnabled {
			gen.Start()
		}
	}
	workers["monitor"] = mon
	defer mon.Stop()
	if cfg.MonitorEnabled {
		mon.Start()
	}

	q := query.New(store, loc, query.Config{
		RecentLimit: cfg.RecentLimit,
		SearchLimit: cfg.SearchLimit,
	})
	stats := aggregate.New(store, aggregate.Config{
		Window:   cfg.AggregationWindow,
		Bucket:   cfg.AggregationBucket,
		Lookback: cfg.DeltaLookback,
	})
	explainer := buildExplainer(cfg)
	backend := &dashboard.Backend{
		Query:     q,
		Stats:     stats,
		Explainer: explain.NewService(q, explainer),
	}

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, backend, workers)
		if err := apiServer.Start(); err != nil {
			log.Printf("Warning: failed to start API server: %v", err)
			cfg.APIEnabled = false
		} else {
			defer apiServer.Stop()
		}
	}

	// Start socket RPC server for TUI IPC
	sockServer := socketrpc.NewServer(cfg.SocketPath, backend)
	sockActive := false
	if err := sockServer.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		sockActive = true
		defer sockServer.Stop()
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(defaultShutdownTimeout)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg, bannerState{
		generator: gen != nil && gen.Running(),
		monitor:   mon.Running(),
		explain:   explainer != nil,
		nats:      natsActive,
		backups:   backupManager != nil,
		socket:    sockActive,
	})

	g, gctx := errgroup.WithContext(ctx)

	// Periodic pipeline counters in the runtime log.
	g.Go(func() error {
		t := time.NewTicker(defaultStatsLogEvery)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				st := mon.Stats()
				log.Printf("monitor: lines=%d recorded=%d failed=%d running=%v",
					st.Lines, st.Recorded, st.Failed, mon.Running())
				if levels, err := store.LevelCounts(); err == nil {
					log.Printf("server: records by level %v", levels)
				}
			}
		}
	})

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	signal.Stop(sigCh)
	return nil
}

// openStore opens the configured backend. Both backends run their schema
// migrations before returning.
func openStore(cfg appConfig, loc *time.Location) (model.RecordStore, error) {
	switch cfg.StoreDriver {
	case driverSQLite:
		return sqlite.New(cfg.DBPath, sqlite.Config{QueryTimeout: cfg.QueryTimeout, Location: loc})
	case driverDuckDB, "":
		return duckdb.NewStore(cfg.DBPath, duckdb.Config{QueryTimeout: cfg.QueryTimeout, Location: loc})
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// startBackups returns nil unless backups are enabled on a DuckDB file store.
func startBackups(cfg appConfig, store model.RecordStore) *backup.Manager {
	if !cfg.BackupEnabled {
		return nil
	}
	duck, ok := store.(*duckdb.Store)
	if !ok {
		log.Printf("backup: disabled, snapshots require the %s driver", driverDuckDB)
		return nil
	}
	m, err := backup.NewManager(duck, backup.Config{
		Enabled:  true,
		Interval: cfg.BackupInterval,
		LocalDir: cfg.BackupLocalDir,
		KeepLast: cfg.BackupKeepLast,
	})
	if err != nil {
		log.Printf("backup: disabled: %v", err)
		return nil
	}
	return m
}

// buildWorkers creates the generator and monitor. A bad catalog file falls
// back to the built-in one; gen is nil only if even that fails.
func buildWorkers(cfg appConfig, writer model.RecordWriter, loc *time.Location) (*generator.Generator, *monitor.Monitor) {
	classifier := classify.Default()
	if cfg.RulesFile != "" {
		c, err := classify.Load(cfg.RulesFile)
		if err != nil {
			log.Printf("classify: using built-in rules: %v", err)
		} else {
			classifier = c
		}
	}
	log.Printf("classify: levels in match order: %s", strings.Join(classifier.Levels(), ", "))

	var catalog []generator.Tier
	if cfg.GeneratorCatalog != "" {
		tiers, err := generator.LoadCatalog(cfg.GeneratorCatalog)
		if err != nil {
			log.Printf("generator: using built-in catalog: %v", err)
		} else {
			catalog = tiers
		}
	}

	gen, err := generator.New(writer, generator.Config{
		Path:        cfg.LogFile,
		Interval:    cfg.GeneratorInterval,
		Backoff:     cfg.GeneratorBackoff,
		StopTimeout: cfg.WorkerStopTimeout,
		Location:    loc,
		Catalog:     catalog,
	})
	if err != nil {
		log.Printf("generator: disabled: %v", err)
		gen = nil
	}

	mon := monitor.New(writer, monitor.Config{
		Path:         cfg.LogFile,
		PollInterval: cfg.MonitorPollInterval,
		StopTimeout:  cfg.WorkerStopTimeout,
		Classifier:   classifier,
	})
	return gen, mon
}

// buildExplainer returns nil when Azure OpenAI is not configured.
func buildExplainer(cfg appConfig) explain.Explainer {
	client, err := explain.NewAzureClient(explain.AzureConfig{
		Endpoint:   cfg.AzureEndpoint,
		APIKey:     cfg.AzureKey,
		Deployment: cfg.AzureDeployment,
		APIVersion: cfg.AzureAPIVersion,
		Timeout:    cfg.ExplainTimeout,
	})
	if err != nil {
		if !errors.Is(err, explain.ErrNotConfigured) {
			log.Printf("explain: disabled: %v", err)
		}
		return nil
	}
	return client
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "errwatch")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "errwatch.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

type bannerState struct {
	generator bool
	monitor   bool
	explain   bool
	nats      bool
	backups   bool
	socket    bool
}

func printStartupBanner(cfg appConfig, st bannerState) {
	fmt.Println(renderStartupBanner(cfg, st))
}

func renderStartupBanner(cfg appConfig, st bannerState) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	row := func(on bool, label, value string) string {
		mark := dot
		if on {
			mark = check
		}
		return fmt.Sprintf("    %s  %-14s %s", mark, label, value)
	}
	status := func(on bool, value string) string {
		if !on {
			return dim.Render("disabled")
		}
		return value
	}

	logo := cyan.Bold(true).Render(`
    ╔═╗╦═╗╦═╗╦ ╦╔═╗╔╦╗╔═╗╦ ╦
    ║╣ ╠╦╝╠╦╝║║║╠═╣ ║ ║  ╠═╣
    ╚═╝╩╚═╩╚═╚╩╝╩ ╩ ╩ ╚═╝╩ ╩`)

	separator := dim.Render("    ─────────────────────────────────")

	lines := []string{
		"",
		logo,
		"    " + dim.Render("v"+version),
		"",
		separator,
		"",
		bold.Render("    Gateway"),
		"",
		row(cfg.APIEnabled, "HTTP API", status(cfg.APIEnabled, cyan.Render(cfg.APIAddr))),
		row(st.socket, "Unix Socket", status(st.socket, cyan.Render(shortenPath(cfg.SocketPath)))),
		"",
		bold.Render("    Pipeline"),
		"",
		row(st.generator, "Generator", status(st.generator, dim.Render("every "+cfg.GeneratorInterval.String()))),
		row(st.monitor, "Monitor", status(st.monitor, dim.Render(shortenPath(cfg.LogFile)))),
		row(st.explain, "Explain", status(st.explain, dim.Render(cfg.AzureDeployment))),
		row(st.nats, "Notifier", status(st.nats, dim.Render(cfg.NATSSubject))),
		"",
		bold.Render("    Storage"),
		"",
		row(true, "Store", dim.Render(cfg.StoreDriver+" "+shortenPath(cfg.DBPath))),
		row(st.backups, "Snapshots", status(st.backups, dim.Render(shortenPath(cfg.BackupLocalDir)))),
		"",
		bold.Render("    Config"),
		"",
	}
	if cfg.ConfigPath != "" {
		lines = append(lines, row(true, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, row(false, "Config File", dim.Render("default (no file)")))
	}
	lines = append(lines,
		"",
		separator,
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)
	return strings.Join(lines, "\n")
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
