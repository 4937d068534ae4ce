// Package tunnel implements the main service: for every inbound game
// connection it performs an HTTP Upgrade against the current remote target
// and splices the hijacked stream to the inbound connection, byte for byte.
package tunnel

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pocketrelay/bridge/internal/ioutilx"
	"github.com/pocketrelay/bridge/internal/target"
)

const dialTimeout = 10 * time.Second

// Service accepts the game's main-service connections and tunnels each one
// to the currently selected remote.
type Service struct {
	listener  net.Listener
	store     *target.Store
	proxyPort uint16
}

// Listen binds addr. proxyPort is advertised to the remote as the local HTTP
// proxy port via the x-pocket-relay-port header.
func Listen(addr string, store *target.Store, proxyPort uint16) (*Service, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Service{listener: ln, store: store, proxyPort: proxyPort}, nil
}

// Addr returns the bound listener address.
func (s *Service) Addr() net.Addr { return s.listener.Addr() }

// Close stops accepting new connections.
func (s *Service) Close() error { return s.listener.Close() }

// Serve accepts connections until ctx is cancelled or the listener closes.
func (s *Service) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handle(ctx, conn)
	}
}

func (s *Service) handle(ctx context.Context, inbound net.Conn) {
	defer inbound.Close()

	tgt, ok := s.store.Get()
	if !ok {
		return
	}

	remote, err := s.dialUpgrade(ctx, tgt)
	if err != nil {
		log.Error().Err(err).Str("remote", tgt.BaseURL.String()).Msg("[tunnel] upgrade failed")
		return
	}
	defer remote.Close()

	if err := splice(ctx, inbound, remote); err != nil {
		log.Debug().Err(err).Msg("[tunnel] connection closed")
	}
}

// dialUpgrade opens a raw TCP (or TLS) connection to the target's host and
// performs the api/server/upgrade HTTP Upgrade handshake, returning the
// hijacked stream.
func (s *Service) dialUpgrade(ctx context.Context, tgt target.Target) (net.Conn, error) {
	host := tgt.BaseURL.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		if tgt.BaseURL.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("dial remote: %w", err)
	}

	if tgt.BaseURL.Scheme == "https" {
		hostname, _, _ := net.SplitHostPort(host)
		tlsConn := tls.Client(rawConn, &tls.Config{ServerName: hostname})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			return nil, fmt.Errorf("tls handshake with remote: %w", err)
		}
		rawConn = tlsConn
	}

	req := buildUpgradeRequest(tgt, s.proxyPort)
	if err := req.Write(rawConn); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("write upgrade request: %w", err)
	}

	br := bufio.NewReader(rawConn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("read upgrade response: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		rawConn.Close()
		return nil, fmt.Errorf("upgrade failed: status %d", resp.StatusCode)
	}

	return &bufferedConn{Conn: rawConn, r: br}, nil
}

func buildUpgradeRequest(tgt target.Target, proxyPort uint16) *http.Request {
	u := &url.URL{
		Scheme: tgt.BaseURL.Scheme,
		Host:   tgt.BaseURL.Host,
		Path:   singleJoiningSlash(tgt.BaseURL.Path, "api/server/upgrade"),
	}

	req, _ := http.NewRequest(http.MethodGet, u.String(), nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "blaze")
	req.Header.Set("x-pocket-relay-scheme", "http")
	req.Header.Set("x-pocket-relay-host", "127.0.0.1")
	req.Header.Set("x-pocket-relay-port", fmt.Sprintf("%d", proxyPort))
	req.Header.Set("x-pocket-relay-local-http", "true")
	if tgt.Association != "" {
		req.Header.Set("x-pocket-relay-association", tgt.Association)
	}
	return req
}

func singleJoiningSlash(a, b string) string {
	aslash := len(a) > 0 && a[len(a)-1] == '/'
	bslash := len(b) > 0 && b[0] == '/'
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

// splice runs the two half-duplex pumps concurrently, each bounded to a
// pooled 64KiB working set, until either direction ends.
func splice(ctx context.Context, inbound, remote net.Conn) error {
	errCh := make(chan error, 2)
	stopCh := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			inbound.Close()
			remote.Close()
		case <-stopCh:
		}
	}()

	go func() {
		buf := *ioutilx.Buffer64K.Get().(*[]byte)
		defer ioutilx.Buffer64K.Put(&buf)
		_, err := io.CopyBuffer(remote, inbound, buf)
		errCh <- err
	}()

	go func() {
		buf := *ioutilx.Buffer64K.Get().(*[]byte)
		defer ioutilx.Buffer64K.Put(&buf)
		_, err := io.CopyBuffer(inbound, remote, buf)
		errCh <- err
	}()

	err := <-errCh
	close(stopCh)
	inbound.Close()
	remote.Close()
	<-errCh

	return err
}

// bufferedConn wraps a net.Conn with a bufio.Reader so bytes already
// buffered while parsing the upgrade response are not lost.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
