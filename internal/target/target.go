// Package target holds the process-wide "current remote" every listener
// reads and only the lookup path writes, guarded by a single RWMutex the way
// the rest of this codebase guards its own shared registries.
package target

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/pocketrelay/bridge/internal/constants"
)

// Target is the currently selected remote server.
type Target struct {
	// BaseURL is always absolute, with scheme http or https and a host.
	BaseURL *url.URL
	Version constants.Version
	// Association is an opaque token some remotes return from /api/server
	// and expect back on /api/server/upgrade.
	Association string
}

// Validate checks the Target invariant: absolute URL, http/https scheme, has
// a host.
func (t Target) Validate() error {
	if t.BaseURL == nil || !t.BaseURL.IsAbs() {
		return fmt.Errorf("target: base URL must be absolute")
	}
	if t.BaseURL.Scheme != "http" && t.BaseURL.Scheme != "https" {
		return fmt.Errorf("target: unsupported scheme %q", t.BaseURL.Scheme)
	}
	if t.BaseURL.Host == "" {
		return fmt.Errorf("target: base URL missing host")
	}
	return nil
}

// Store is the multiple-reader/single-writer holder for the current Target.
// The zero value is ready to use and holds no target.
type Store struct {
	mu  sync.RWMutex
	cur *Target
}

// Get returns a copy of the current target and whether one is set. The
// stored Target is never mutated in place -- Set always installs a fresh
// one -- so callers may hold onto the copy past the call.
func (s *Store) Get() (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return Target{}, false
	}
	return *s.cur, true
}

// Set atomically replaces the current target.
func (s *Store) Set(t Target) {
	cp := t
	s.mu.Lock()
	s.cur = &cp
	s.mu.Unlock()
}

// Clear removes the current target, if any.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cur = nil
	s.mu.Unlock()
}
