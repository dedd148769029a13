package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Expected default port 9000, got %d", cfg.Port)
	}
	if cfg.DBPath != "joddb.db" {
		t.Errorf("Expected default db path joddb.db, got %s", cfg.DBPath)
	}
	if cfg.Metrics.ShiftCapacitySeconds != 28800 {
		t.Errorf("Expected 8h shift capacity, got %d", cfg.Metrics.ShiftCapacitySeconds)
	}
	if cfg.Metrics.EfficiencyThreshold != 70.0 {
		t.Errorf("Expected 70%% efficiency floor, got %v", cfg.Metrics.EfficiencyThreshold)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joddb.yaml")
	content := `port: 8080
db: /tmp/factory.db
metrics:
  shift_capacity_seconds: 27000
  efficiency_threshold: 65
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Port)
	}
	if cfg.DBPath != "/tmp/factory.db" {
		t.Errorf("Expected db path /tmp/factory.db, got %s", cfg.DBPath)
	}
	if cfg.Metrics.ShiftCapacitySeconds != 27000 {
		t.Errorf("Expected shift capacity 27000, got %d", cfg.Metrics.ShiftCapacitySeconds)
	}
	if cfg.Metrics.EfficiencyThreshold != 65.0 {
		t.Errorf("Expected efficiency threshold 65, got %v", cfg.Metrics.EfficiencyThreshold)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joddb.yaml")
	if err := os.WriteFile(path, []byte("port: 0\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Expected zero port re-defaulted to 9000, got %d", cfg.Port)
	}
	if cfg.DBPath != "joddb.db" {
		t.Errorf("Expected default db path preserved, got %s", cfg.DBPath)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig("/nonexistent/joddb.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joddb.yaml")
	os.WriteFile(path, []byte("port: [not a number\n"), 0o644)

	if _, err := loadConfig(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}
