package monitor

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/errwatch/internal/classify"
	"github.com/tinytelemetry/errwatch/internal/logsource"
	"github.com/tinytelemetry/errwatch/internal/model"
	"github.com/tinytelemetry/errwatch/internal/runner"
)

// Config holds monitor parameters.
type Config struct {
	Path string
	// PollInterval paces reopen attempts after the stream is lost. File
	// growth is polled at the interval given to logsource.SetPollInterval.
	PollInterval time.Duration
	StopTimeout  time.Duration
	Classifier   *classify.Classifier // nil uses the built-in catalog
}

// LineResult is the outcome of processing one line.
type LineResult struct {
	Matched bool
	Level   string
	ID      int64
	Err     error
}

// Stats are running counters since process start.
type Stats struct {
	Lines    int64 `json:"lines"`
	Recorded int64 `json:"recorded"`
	Failed   int64 `json:"failed"`
}

// Monitor tails the log stream and persists lines that match an error rule.
type Monitor struct {
	cfg        Config
	store      model.RecordWriter
	classifier *classify.Classifier
	loop       *runner.Loop

	lines    atomic.Int64
	recorded atomic.Int64
	failed   atomic.Int64
}

// New creates a stopped monitor writing to store.
func New(store model.RecordWriter, cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = model.DefaultPollInterval
	}
	c := cfg.Classifier
	if c == nil {
		c = classify.Default()
	}
	return &Monitor{
		cfg:        cfg,
		store:      store,
		classifier: c,
		loop:       runner.New("monitor", cfg.StopTimeout),
	}
}

// Start opens the log stream at its current end and begins tailing. It is a
// no-op while already running. An open failure is logged and abandons this
// start attempt only; Running stays false.
func (m *Monitor) Start() {
	if m.loop.Running() {
		return
	}
	t, err := logsource.Open(m.cfg.Path)
	if err != nil {
		log.Printf("monitor: start failed: %v", err)
		return
	}
	if !m.loop.Start(func(ctx context.Context) { m.run(ctx, t) }) {
		t.Close()
	}
}

// Stop halts tailing. The cursor is discarded; the next Start resumes at
// end-of-file.
func (m *Monitor) Stop() bool { return m.loop.Stop() }

// Running reports whether the tail loop is alive.
func (m *Monitor) Running() bool { return m.loop.Running() }

// Stats returns the line counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Lines:    m.lines.Load(),
		Recorded: m.recorded.Load(),
		Failed:   m.failed.Load(),
	}
}

func (m *Monitor) run(ctx context.Context, t *logsource.Tailer) {
	defer func() {
		if t != nil {
			t.Close()
		}
	}()
	log.Printf("monitor: tailing %s from offset %d", t.Path(), t.Offset())

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-t.Lines():
			if ok {
				if line.Err != nil {
					log.Printf("monitor: read %s: %v", t.Path(), line.Err)
					continue
				}
				m.ProcessLine(line.Text)
				continue
			}
			log.Printf("monitor: tail of %s ended: %v", t.Path(), t.Err())
			t.Close()
			t = m.reopen(ctx)
			if t == nil {
				return
			}
		}
	}
}

// reopen retries opening the stream every poll interval until it succeeds
// or ctx is done, in which case it returns nil.
func (m *Monitor) reopen(ctx context.Context) *logsource.Tailer {
	for runner.Sleep(ctx, m.cfg.PollInterval) {
		t, err := logsource.Open(m.cfg.Path)
		if err == nil {
			log.Printf("monitor: resumed %s at offset %d", t.Path(), t.Offset())
			return t
		}
		log.Printf("monitor: reopen: %v", err)
	}
	return nil
}

// ProcessLine classifies one raw line and persists it when a rule matches.
// Surrounding whitespace is trimmed and blank lines are ignored.
func (m *Monitor) ProcessLine(raw string) LineResult {
	line := strings.TrimSpace(raw)
	if line == "" {
		return LineResult{}
	}
	m.lines.Add(1)

	level, ok := m.classifier.Level(line)
	if !ok {
		return LineResult{}
	}

	id, err := m.store.Insert(model.NewRecord{
		Level:        level,
		Message:      line,
		ResponseTime: m.classifier.ResponseTime(line),
	})
	if err != nil {
		m.failed.Add(1)
		log.Printf("monitor: persist %s line: %v", level, err)
		return LineResult{Matched: true, Level: level, Err: err}
	}
	m.recorded.Add(1)
	return LineResult{Matched: true, Level: level, ID: id}
}
