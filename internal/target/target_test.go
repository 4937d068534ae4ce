package target

import (
	"net/url"
	"sync"
	"testing"

	"github.com/pocketrelay/bridge/internal/constants"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestStoreGetSetClear(t *testing.T) {
	var s Store

	if _, ok := s.Get(); ok {
		t.Fatalf("expected no target initially")
	}

	want := Target{BaseURL: mustURL(t, "http://example.test"), Version: constants.Version{Major: 0, Minor: 5, Patch: 0}}
	s.Set(want)

	got, ok := s.Get()
	if !ok {
		t.Fatalf("expected a target after Set")
	}
	if got.BaseURL.String() != want.BaseURL.String() {
		t.Fatalf("base url mismatch: got %v want %v", got.BaseURL, want.BaseURL)
	}

	s.Clear()
	if _, ok := s.Get(); ok {
		t.Fatalf("expected no target after Clear")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{"valid http", Target{BaseURL: mustURL(t, "http://host.test:80")}, false},
		{"valid https", Target{BaseURL: mustURL(t, "https://host.test")}, false},
		{"nil url", Target{}, true},
		{"bad scheme", Target{BaseURL: mustURL(t, "ftp://host.test")}, true},
		{"relative url", Target{BaseURL: mustURL(t, "/just/a/path")}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.target.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

// TestStoreNoTornReads exercises invariant 7: a reader never observes a
// partially-updated Target under concurrent writes.
func TestStoreNoTornReads(t *testing.T) {
	var s Store
	s.Set(Target{BaseURL: mustURL(t, "http://a.test")})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		hosts := []string{"http://a.test", "http://b.test"}
		i := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			s.Set(Target{BaseURL: mustURL(t, hosts[i%len(hosts)])})
			i++
		}
	}()

	for i := 0; i < 1000; i++ {
		got, ok := s.Get()
		if !ok {
			t.Fatalf("target unexpectedly absent mid-race")
		}
		if got.BaseURL.Host != "a.test" && got.BaseURL.Host != "b.test" {
			t.Fatalf("torn read: got host %q", got.BaseURL.Host)
		}
	}

	close(stop)
	wg.Wait()
}
