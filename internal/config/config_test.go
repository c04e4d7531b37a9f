package config

import "testing"

func TestInitThenLoad(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Version != CurrentVersion {
		t.Fatalf("Version = %d, want %d", c.Version, CurrentVersion)
	}
}

func TestInitIsNoopWhenPresent(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, Config{Version: 99}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Version != 99 {
		t.Fatalf("expected Init to leave existing config untouched, got version %d", c.Version)
	}
}

func TestLoadMissingReturnsZeroValue(t *testing.T) {
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Version != 0 {
		t.Fatalf("expected zero-value config for missing file, got %+v", c)
	}
}
