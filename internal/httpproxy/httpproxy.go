// Package httpproxy transparently forwards the game's local HTTP GETs to
// the currently selected remote server.
package httpproxy

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pocketrelay/bridge/internal/target"
)

// Service is an http.Handler that forwards every GET request to
// Target.BaseURL, joined with the incoming path and query. Requests with any
// other method are not forwarded; the router answers them with 405.
type Service struct {
	router *chi.Mux
	store  *target.Store
	client *http.Client
}

// New builds a Service backed by store for target resolution.
func New(store *target.Store, client *http.Client) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	s := &Service{store: store, client: client}

	r := chi.NewRouter()
	r.Get("/*", s.forward)
	s.router = r

	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Service) forward(w http.ResponseWriter, r *http.Request) {
	tgt, ok := s.store.Get()
	if !ok {
		http.Error(w, "no target selected", http.StatusServiceUnavailable)
		return
	}

	outURL := *tgt.BaseURL
	outURL.Path = singleJoiningSlash(tgt.BaseURL.Path, r.URL.Path)
	outURL.RawQuery = r.URL.RawQuery

	outReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, outURL.String(), nil)
	if err != nil {
		http.Error(w, "bad upstream request", http.StatusInternalServerError)
		return
	}

	resp, err := s.client.Do(outReq)
	if err != nil {
		log.Warn().Err(err).Str("url", outURL.String()).Msg("[httpproxy] upstream request failed")
		http.Error(w, "upstream request failed", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func singleJoiningSlash(a, b string) string {
	aslash := len(a) > 0 && a[len(a)-1] == '/'
	bslash := len(b) > 0 && b[0] == '/'
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		if a == "" {
			return b
		}
		return a + "/" + b
	}
	return a + b
}
