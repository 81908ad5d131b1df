package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	cfg, err := Load("../../configs/farplane.yaml")
	if err != nil {
		t.Fatalf("load farplane.yaml: %v", err)
	}
	if cfg.Store.GenWorkers != 4 || cfg.Store.IOWorkers != 2 {
		t.Fatalf("store=%+v", cfg.Store)
	}
	if cfg.Render.BakedSize != 256 || cfg.Render.MaxLevel != 6 {
		t.Fatalf("render=%+v", cfg.Render)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "./data" || cfg.Listen != ":8080" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Store.GenWorkers <= 0 {
		t.Fatalf("gen workers=%d", cfg.Store.GenWorkers)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(p, []byte("terrain:\n  seed: 7\nstore:\n  io_workers: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Terrain.Seed != 7 {
		t.Fatalf("seed=%d", cfg.Terrain.Seed)
	}
	if cfg.Terrain.BaseHeight != 64 {
		t.Fatalf("base height default lost: %d", cfg.Terrain.BaseHeight)
	}
	if cfg.Store.IOWorkers != 2 {
		t.Fatalf("io workers not normalized: %d", cfg.Store.IOWorkers)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("render:\n  baked_size: -1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "render sizes") {
		t.Fatalf("err=%v want render sizes error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
