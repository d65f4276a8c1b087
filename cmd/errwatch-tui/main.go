package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/errwatch/internal/model"
	"github.com/tinytelemetry/errwatch/internal/socketrpc"
	"github.com/tinytelemetry/errwatch/internal/tui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var socketPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/errwatch/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to errwatch service")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("errwatch TUI - Dashboard Client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if socketPath != "" {
		cfg.SocketPath = socketPath
	}

	if err := runTUI(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig) error {
	client, err := socketrpc.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to errwatch service at %s: %w\nIs the errwatch service running? Start it with: errwatch", cfg.SocketPath, err)
	}
	defer client.Close()

	loc := model.CivilZone(cfg.CivilUTCOffset)
	client.SetLocation(loc)

	dash := tui.NewDashboardPage(client, tui.Config{
		UpdateInterval: cfg.UpdateInterval,
		RecentLimit:    cfg.RecentLimit,
		Window:         cfg.AggregationWindow,
		Bucket:         cfg.AggregationBucket,
		Lookback:       cfg.DeltaLookback,
		Location:       loc,
	})
	app := tui.NewApp(dash, tui.NewDetailPage())

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
