package backup

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	filePrefix = "errwatch-"
	fileSuffix = ".duckdb"
	// Fixed-width stamp so lexical order matches chronology.
	stampLayout = "20060102-150405.000000000"
)

// Manager takes periodic local snapshots of the store and prunes old ones.
type Manager struct {
	store Snapshotter
	cfg   Config

	mu       sync.Mutex
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager validates cfg and starts the snapshot loop. It returns nil when
// backups are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, fmt.Errorf("backup: db-path is empty (in-memory store)")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: local-dir is required when backup is enabled")
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	m := &Manager{
		store: store,
		cfg:   cfg,
		done:  make(chan struct{}),
	}

	if _, err := m.RunOnce(); err != nil {
		log.Printf("backup: startup snapshot failed: %v", err)
	}

	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.RunOnce(); err != nil {
				log.Printf("backup: periodic snapshot failed: %v", err)
			}
		case <-m.done:
			return
		}
	}
}

// RunOnce writes one snapshot, prunes old copies, and returns the new path.
func (m *Manager) RunOnce() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fileName := filePrefix + time.Now().UTC().Format(stampLayout) + fileSuffix
	localPath := filepath.Join(m.cfg.LocalDir, fileName)

	if err := m.store.SnapshotTo(localPath); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	log.Printf("backup: created snapshot %s", localPath)

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return localPath, fmt.Errorf("prune local backups: %w", err)
	}
	return localPath, nil
}

// List returns existing snapshot paths, newest first.
func (m *Manager) List() ([]string, error) {
	return listBackups(m.cfg.LocalDir)
}

// Stop terminates the periodic loop. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.done != nil {
			close(m.done)
		}
	})
	m.wg.Wait()
}

func listBackups(localDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(localDir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })
	return matches, nil
}

func pruneLocalBackups(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	matches, err := listBackups(localDir)
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}
	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
