// Package config persists the single piece of durable state this bridge
// keeps: the last connection URL the user entered, written next to the
// executable as a small JSON document.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/pocketrelay/bridge/internal/constants"
)

// ClientConfig is the on-disk document shape.
type ClientConfig struct {
	ConnectionURL string `json:"connection_url"`
}

// Store reads and writes ClientConfig at a fixed path.
type Store struct {
	path string
}

// NewStore returns a Store rooted at path. If path is empty, it defaults to
// constants.ConfigFileName next to the running executable.
func NewStore(path string) (*Store, error) {
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(filepath.Dir(exe), constants.ConfigFileName)
	}
	return &Store{path: path}, nil
}

// Read loads the config file. It returns ok=false (with no error) if the
// file does not exist, matching the original client's "missing config is not
// an error" behavior.
func (s *Store) Read() (ClientConfig, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ClientConfig{}, false, nil
		}
		return ClientConfig{}, false, err
	}

	var cfg ClientConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ClientConfig{}, false, err
	}
	return cfg, true, nil
}

// Write persists cfg, overwriting any existing file. Failures are the
// caller's to handle; callers that treat persistence as best-effort should
// log and continue rather than propagate.
func (s *Store) Write(cfg ClientConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// WriteBestEffort calls Write and logs any failure instead of returning it,
// for call sites that must not let config persistence block the caller.
func (s *Store) WriteBestEffort(cfg ClientConfig) {
	if err := s.Write(cfg); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("[config] failed to save client config")
	}
}
