package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := setHome(t)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.StoreDriver != driverDuckDB {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if want := filepath.Join(home, ".local", "share", "errwatch", "errwatch.duckdb"); cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
	if cfg.APIAddr != "127.0.0.1:3000" {
		t.Errorf("APIAddr = %q", cfg.APIAddr)
	}
	if cfg.CivilUTCOffset != 9*time.Hour {
		t.Errorf("CivilUTCOffset = %v", cfg.CivilUTCOffset)
	}
	if cfg.GeneratorInterval != 5*time.Second || cfg.MonitorPollInterval != 100*time.Millisecond {
		t.Errorf("intervals = %v / %v", cfg.GeneratorInterval, cfg.MonitorPollInterval)
	}
	if cfg.DeltaLookback != time.Hour || cfg.AggregationBucket != 5*time.Minute {
		t.Errorf("aggregation = %v / %v", cfg.DeltaLookback, cfg.AggregationBucket)
	}
	if cfg.RecentLimit != 10 || cfg.SearchLimit != 100 {
		t.Errorf("limits = %d / %d", cfg.RecentLimit, cfg.SearchLimit)
	}
	if cfg.NATSSubject != "errwatch.records" || cfg.AzureDeployment != "gpt-4.1-mini" {
		t.Errorf("nats subject %q, deployment %q", cfg.NATSSubject, cfg.AzureDeployment)
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath = %q, want empty without a file", cfg.ConfigPath)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	home := setHome(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	content := []byte(`store-driver: SQLite
db-path: ~/data/errors.db
recent-limit: 20
generator-interval: 250ms
rules-file: ~/rules.yml
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ERRWATCH_API_PORT", "4100")
	t.Setenv("ERRWATCH_MONITOR_ENABLED", "false")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.StoreDriver != driverSQLite {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if want := filepath.Join(home, "data", "errors.db"); cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
	if want := filepath.Join(home, "rules.yml"); cfg.RulesFile != want {
		t.Errorf("RulesFile = %q, want %q", cfg.RulesFile, want)
	}
	if cfg.RecentLimit != 20 || cfg.GeneratorInterval != 250*time.Millisecond {
		t.Errorf("RecentLimit = %d, GeneratorInterval = %v", cfg.RecentLimit, cfg.GeneratorInterval)
	}
	if cfg.APIAddr != "127.0.0.1:4100" {
		t.Errorf("APIAddr = %q", cfg.APIAddr)
	}
	if cfg.MonitorEnabled {
		t.Error("MonitorEnabled = true, want env override to false")
	}
	if cfg.ConfigPath != path {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"driver", map[string]string{"ERRWATCH_STORE_DRIVER": "postgres"}},
		{"port", map[string]string{"ERRWATCH_API_PORT": "70000"}},
		{"limit", map[string]string{"ERRWATCH_RECENT_LIMIT": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setHome(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := loadConfig(""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
