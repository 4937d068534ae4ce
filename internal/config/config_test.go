package config

import (
	"path/filepath"
	"testing"
)

func TestReadMissingFileIsNotError(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	_, ok, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing file")
	}
}

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	want := ClientConfig{ConnectionURL: "https://relay.example.test"}
	if err := s.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, ok, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true after write")
	}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestWriteBestEffortDoesNotPanicOnBadPath(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "missing-dir", "cfg.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.WriteBestEffort(ClientConfig{ConnectionURL: "x"})
}
