package generator

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/errwatch/internal/model"
	"github.com/tinytelemetry/errwatch/internal/runner"
)

const (
	minResponseTime = 100
	maxResponseTime = 5000

	lineTimeLayout = "2006-01-02 15:04:05.000"
)

// Config holds generator parameters.
type Config struct {
	Path        string
	Interval    time.Duration
	Backoff     time.Duration
	StopTimeout time.Duration
	Location    *time.Location
	Catalog     []Tier

	Now  func() time.Time // defaults to time.Now
	Rand *rand.Rand       // defaults to a randomly seeded source
}

// CycleResult is the outcome of one generation cycle.
type CycleResult struct {
	Level        string
	Message      string
	ResponseTime int
	Line         string
	ID           int64
	Err          error
}

// Generator synthesizes error events, appending each to the log stream and
// inserting it into the store.
type Generator struct {
	cfg   Config
	store model.RecordWriter
	loop  *runner.Loop

	randMu sync.Mutex
	rng    *rand.Rand
}

// New creates a stopped generator. It returns an error for an invalid catalog.
func New(store model.RecordWriter, cfg Config) (*Generator, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = model.DefaultGenerateInterval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = model.DefaultGenerateBackoff
	}
	if cfg.Location == nil {
		cfg.Location = model.DefaultCivilZone
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog
	}
	if err := validateCatalog(cfg.Catalog); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{
		cfg:   cfg,
		store: store,
		loop:  runner.New("generator", cfg.StopTimeout),
		rng:   rng,
	}, nil
}

// Start begins generating immediately and then every interval. It is a
// no-op while already running.
func (g *Generator) Start() { g.loop.Start(g.run) }

// Stop halts generation, waiting at most the stop timeout.
func (g *Generator) Stop() bool { return g.loop.Stop() }

// Running reports whether the generation loop is alive.
func (g *Generator) Running() bool { return g.loop.Running() }

func (g *Generator) run(ctx context.Context) {
	for ctx.Err() == nil {
		wait := g.cfg.Interval
		if res := g.Cycle(); res.Err != nil {
			log.Printf("generator: cycle failed: %v", res.Err)
			wait = g.cfg.Backoff
		}
		runner.Sleep(ctx, wait)
	}
}

// Cycle emits one synthetic event. The stream line is written before the
// store insert; a stream failure skips the insert.
func (g *Generator) Cycle() CycleResult {
	level, message, rt := g.pick()
	now := g.cfg.Now().In(g.cfg.Location)
	line := FormatLine(now, level, message, rt)
	res := CycleResult{Level: level, Message: message, ResponseTime: rt, Line: line}

	if err := appendLine(g.cfg.Path, line); err != nil {
		res.Err = err
		return res
	}

	id, err := g.store.Insert(model.NewRecord{
		Level:        level,
		Message:      message,
		ResponseTime: rt,
		Timestamp:    now,
	})
	if err != nil {
		res.Err = fmt.Errorf("generator: insert: %w", err)
		return res
	}
	res.ID = id
	return res
}

func (g *Generator) pick() (level, message string, rt int) {
	g.randMu.Lock()
	defer g.randMu.Unlock()

	tier := g.cfg.Catalog[g.rng.IntN(len(g.cfg.Catalog))]
	message = tier.Messages[g.rng.IntN(len(tier.Messages))]
	rt = minResponseTime + g.rng.IntN(maxResponseTime-minResponseTime+1)
	return tier.Level, message, rt
}

var lineEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`)

// FormatLine renders one stream line. Embedded line breaks and tabs are
// escaped so every event occupies exactly one line.
func FormatLine(ts time.Time, level, message string, responseTime int) string {
	return fmt.Sprintf("[%s] %s: %s [%dms]", ts.Format(lineTimeLayout), level, lineEscaper.Replace(message), responseTime)
}

// appendLine opens, appends one line, and closes the file.
func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("generator: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("generator: open %s: %w", path, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("generator: write %s: %w", path, err)
	}
	return f.Close()
}
