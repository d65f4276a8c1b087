package logsource

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testPoll = 10 * time.Millisecond

func TestMain(m *testing.M) {
	SetPollInterval(testPoll)
	os.Exit(m.Run())
}

func appendString(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func nextLine(t *testing.T, tl *Tailer) string {
	t.Helper()
	select {
	case l, ok := <-tl.Lines():
		if !ok {
			t.Fatalf("lines closed: %v", tl.Err())
		}
		if l.Err != nil {
			t.Fatalf("line error: %v", l.Err)
		}
		return l.Text
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a line")
	}
	return ""
}

func expectQuiet(t *testing.T, tl *Tailer) {
	t.Helper()
	select {
	case l := <-tl.Lines():
		t.Fatalf("unexpected line %q", l.Text)
	case <-time.After(20 * testPoll):
	}
}

func TestOpenCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tomcat.log")
	tl, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tl.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	if tl.Offset() != 0 {
		t.Errorf("Offset = %d, want 0", tl.Offset())
	}
}

func TestOpenFailsWhenParentIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	appendString(t, blocker, "x")

	if _, err := Open(filepath.Join(blocker, "tomcat.log")); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenSkipsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendString(t, path, "ERROR old line\n")

	tl, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tl.Close()

	if tl.Offset() != int64(len("ERROR old line\n")) {
		t.Errorf("Offset = %d", tl.Offset())
	}

	// Written immediately after Open, before the follower has necessarily
	// opened the file.
	appendString(t, path, "ERROR new line\nFATAL second\n")
	if got := nextLine(t, tl); got != "ERROR new line" {
		t.Errorf("first line = %q", got)
	}
	if got := nextLine(t, tl); got != "FATAL second" {
		t.Errorf("second line = %q", got)
	}
}

func TestPartialLineHeldUntilNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	tl, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tl.Close()

	appendString(t, path, "ERROR half")
	expectQuiet(t, tl)

	appendString(t, path, " and rest\n")
	if got := nextLine(t, tl); got != "ERROR half and rest" {
		t.Errorf("line = %q, want joined line", got)
	}
}

func TestReopenAfterTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendString(t, path, "ERROR one\nERROR two\n")

	tl, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tl.Close()

	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	// Let the poller observe the shrink before the file grows again.
	time.Sleep(20 * testPoll)

	appendString(t, path, "FATAL after truncate\n")
	if got := nextLine(t, tl); got != "FATAL after truncate" {
		t.Errorf("line = %q", got)
	}
}

func TestReopenAfterReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	appendString(t, path, "ERROR before rotate\n")

	tl, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tl.Close()

	if err := os.Rename(path, filepath.Join(dir, "app.log.1")); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	appendString(t, path, "ERROR in new file\n")
	if got := nextLine(t, tl); got != "ERROR in new file" {
		t.Errorf("line = %q", got)
	}
}

func TestCloseEndsLines(t *testing.T) {
	tl, err := Open(filepath.Join(t.TempDir(), "app.log"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-tl.Lines():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("lines channel not closed after Close")
	}
}
