package logsource

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/nxadm/tail"
	"github.com/nxadm/tail/watch"
)

// Tailer follows a growing text file from the size it had at Open.
//
// The file is polled, not watched through inotify. A trailing fragment
// without a newline is held back until the rest of the line arrives. When the
// file is truncated or replaced the tailer reopens it and reads the new file
// from its start.
type Tailer struct {
	path   string
	offset int64
	t      *tail.Tail
}

// SetPollInterval sets how often followed files are checked for new data.
// The interval is process-wide and must be set before the first Open.
func SetPollInterval(d time.Duration) {
	if d > 0 {
		watch.POLL_DURATION = d
	}
}

// Open ensures path and its parent directory exist and starts following it
// from its current end.
func Open(path string) (*Tailer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("logsource: create dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("logsource: open %s: %w", path, err)
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("logsource: stat %s: %w", path, err)
	}

	// The end offset is taken here rather than with SeekEnd so that lines
	// appended before the follower goroutine opens the file are not skipped.
	t, err := tail.TailFile(path, tail.Config{
		Location:      &tail.SeekInfo{Offset: info.Size(), Whence: io.SeekStart},
		ReOpen:        true,
		Follow:        true,
		Poll:          true,
		CompleteLines: true,
		Logger:        log.New(log.Writer(), "logsource: ", log.Flags()),
	})
	if err != nil {
		return nil, fmt.Errorf("logsource: tail %s: %w", path, err)
	}
	return &Tailer{path: path, offset: info.Size(), t: t}, nil
}

// Path returns the followed file path.
func (t *Tailer) Path() string { return t.path }

// Offset returns the byte position tailing started from.
func (t *Tailer) Offset() int64 { return t.offset }

// Lines delivers complete lines without their trailing newline. It is closed
// when tailing ends; Err then reports the cause.
func (t *Tailer) Lines() <-chan *tail.Line { return t.t.Lines }

// Err returns the reason tailing ended, or nil while it is still running.
func (t *Tailer) Err() error { return t.t.Err() }

// Close stops following the file and waits for the follower to exit.
func (t *Tailer) Close() error { return t.t.Stop() }
