// Package lookup resolves a user-supplied connection string into a Target by
// querying the candidate server's /api/server endpoint, mirroring the
// original client's try_lookup_host/try_update_host pair.
package lookup

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pocketrelay/bridge/internal/config"
	"github.com/pocketrelay/bridge/internal/constants"
	"github.com/pocketrelay/bridge/internal/target"
)

// ErrorKind enumerates the ways a lookup can fail.
type ErrorKind int

const (
	InvalidHostTarget ErrorKind = iota
	ConnectionFailed
	ErrorResponse
	InvalidResponse
	NotPocketRelay
	ServerOutdated
)

// Error is returned by Lookup on any failure. Status is only meaningful for
// ErrorResponse; Got/Min are only meaningful for ServerOutdated.
type Error struct {
	Kind   ErrorKind
	Status int
	Got    constants.Version
	Min    constants.Version
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case InvalidHostTarget:
		return "unable to find host portion of provided connection URL"
	case ConnectionFailed:
		return fmt.Sprintf("failed to connect to server: %v", e.Err)
	case ErrorResponse:
		return fmt.Sprintf("server responded with status %d", e.Status)
	case InvalidResponse:
		return fmt.Sprintf("invalid server response: %v", e.Err)
	case NotPocketRelay:
		return "server is not a pocket relay server"
	case ServerOutdated:
		return fmt.Sprintf("server version %s is older than required %s", e.Got, e.Min)
	default:
		return "lookup failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// serverDetails is the subset of /api/server's JSON body this bridge cares
// about; any other fields are ignored by this client.
type serverDetails struct {
	Version     string `json:"version"`
	Ident       string `json:"ident"`
	Association string `json:"association,omitempty"`
}

// Service performs lookups against candidate servers and publishes the
// result into a target.Store.
type Service struct {
	client *http.Client
	store  *target.Store
	cfg    *config.Store
}

// NewService builds a Service. cfg may be nil if persistence is not wanted.
func NewService(client *http.Client, store *target.Store, cfg *config.Store) *Service {
	if client == nil {
		client = &http.Client{Timeout: constants.LookupTimeout}
	}
	return &Service{client: client, store: store, cfg: cfg}
}

// normalize turns a user-supplied host string into the full /api/server URL.
func normalize(host string) string {
	var b strings.Builder
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		b.WriteString("http://")
	}
	b.WriteString(host)
	if !strings.HasSuffix(host, "/") {
		b.WriteByte('/')
	}
	b.WriteString("api/server")
	return b.String()
}

// Lookup queries host's /api/server endpoint, validates the response, and
// returns the resolved Target without publishing it.
func (s *Service) Lookup(userHost string) (target.Target, error) {
	reqURL := normalize(userHost)

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return target.Target{}, &Error{Kind: InvalidHostTarget, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", constants.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return target.Target{}, &Error{Kind: ConnectionFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return target.Target{}, &Error{Kind: ErrorResponse, Status: resp.StatusCode}
	}

	effective := resp.Request.URL
	if effective == nil || effective.Host == "" {
		return target.Target{}, &Error{Kind: InvalidHostTarget}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return target.Target{}, &Error{Kind: InvalidResponse, Err: err}
	}

	var details serverDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return target.Target{}, &Error{Kind: InvalidResponse, Err: err}
	}

	if details.Ident != constants.ServerIdent {
		return target.Target{}, &Error{Kind: NotPocketRelay}
	}

	version, err := constants.ParseVersion(details.Version)
	if err != nil {
		return target.Target{}, &Error{Kind: InvalidResponse, Err: err}
	}
	if version.Less(constants.MinServerVersion) {
		return target.Target{}, &Error{Kind: ServerOutdated, Got: version, Min: constants.MinServerVersion}
	}

	base := &url.URL{Scheme: effective.Scheme, Host: effective.Host}
	t := target.Target{BaseURL: base, Version: version, Association: details.Association}
	if err := t.Validate(); err != nil {
		return target.Target{}, &Error{Kind: InvalidHostTarget, Err: err}
	}

	return t, nil
}

// Update performs a lookup, atomically publishes the resulting Target, and
// optionally persists the original connection string to the config store.
func (s *Service) Update(userHost string, persist bool) (target.Target, error) {
	t, err := s.Lookup(userHost)
	if err != nil {
		return target.Target{}, err
	}

	s.store.Set(t)

	if persist && s.cfg != nil {
		s.cfg.WriteBestEffort(config.ClientConfig{ConnectionURL: userHost})
	}

	return t, nil
}
