package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReturnsDefaultsWhenConfigAbsent(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Review.MaxLoops != 3 {
		t.Errorf("Review.MaxLoops = %d, want default 3", cfg.Review.MaxLoops)
	}
	if cfg.QA.MaxIterations != 50 {
		t.Errorf("QA.MaxIterations = %d, want default 50", cfg.QA.MaxIterations)
	}
}

func TestLoadAppliesDefaultsForPartialConfig(t *testing.T) {
	dir := t.TempDir()
	yaml := "review:\n  max_loops: 7\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Review.MaxLoops != 7 {
		t.Errorf("Review.MaxLoops = %d, want 7 from config file", cfg.Review.MaxLoops)
	}
	if cfg.QA.MaxIterations != 50 {
		t.Errorf("QA.MaxIterations = %d, want default 50 (unset in file)", cfg.QA.MaxIterations)
	}
	if cfg.StallDetection.CircularFixThreshold != 0.3 {
		t.Errorf("CircularFixThreshold = %v, want default 0.3", cfg.StallDetection.CircularFixThreshold)
	}
}
