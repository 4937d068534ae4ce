// Package supervisor owns the lifecycle of the five listeners this bridge
// runs concurrently, starting and stopping them together as one idempotent
// group.
package supervisor

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pocketrelay/bridge/internal/constants"
	"github.com/pocketrelay/bridge/internal/httpproxy"
	"github.com/pocketrelay/bridge/internal/publicaddr"
	"github.com/pocketrelay/bridge/internal/qos"
	"github.com/pocketrelay/bridge/internal/redirector"
	"github.com/pocketrelay/bridge/internal/target"
	"github.com/pocketrelay/bridge/internal/telemetry"
	"github.com/pocketrelay/bridge/internal/tunnel"
)

// listener is the minimal shape every service in the group exposes.
type listener interface {
	Serve(ctx context.Context) error
	Close() error
}

// Group supervises the redirector, tunnel, HTTP proxy, QoS, and telemetry
// services as a single cancellable unit.
type Group struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	store      *target.Store
	httpClient *http.Client
	resolver   *publicaddr.Resolver

	bindHost string
}

// New builds a Group bound to bindHost (e.g. "127.0.0.1" or "0.0.0.0").
func New(store *target.Store, bindHost string) *Group {
	return &Group{
		store:      store,
		httpClient: &http.Client{Timeout: constants.LookupTimeout},
		resolver:   publicaddr.NewResolver(),
		bindHost:   bindHost,
	}
}

// Start is idempotent: it stops any previously running group, then spawns
// all five listeners as cancellable tasks bound to the supervisor's own
// lifetime (target changes do not require rebinding sockets -- every
// listener re-reads the shared Store on each request).
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		g.stopLocked()
	}

	groupCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	redirSvc, err := redirector.Listen(g.addr(constants.RedirectorPort), constants.MainPort)
	if err != nil {
		cancel()
		return err
	}
	tunnelSvc, err := tunnel.Listen(g.addr(constants.MainPort), g.store, constants.HTTPPort)
	if err != nil {
		redirSvc.Close()
		cancel()
		return err
	}
	qosSvc, err := qos.Listen(g.addr(constants.QOSPort), g.resolver)
	if err != nil {
		redirSvc.Close()
		tunnelSvc.Close()
		cancel()
		return err
	}
	telemetrySvc, err := telemetry.Listen(g.addr(constants.TelemetryPort), g.store, g.httpClient)
	if err != nil {
		redirSvc.Close()
		tunnelSvc.Close()
		qosSvc.Close()
		cancel()
		return err
	}

	httpSvc := httpproxy.New(g.store, g.httpClient)
	httpSrv := &http.Server{Addr: g.addr(constants.HTTPPort), Handler: httpSvc}
	httpLn, err := newHTTPListener(httpSrv.Addr)
	if err != nil {
		redirSvc.Close()
		tunnelSvc.Close()
		qosSvc.Close()
		telemetrySvc.Close()
		cancel()
		return err
	}

	g.spawn(groupCtx, "redirector", redirSvc)
	g.spawn(groupCtx, "tunnel", tunnelSvc)
	g.spawn(groupCtx, "qos", qosSvc)
	g.spawn(groupCtx, "telemetry", telemetrySvc)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		go func() {
			<-groupCtx.Done()
			httpSrv.Close()
		}()
		if err := httpSrv.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("[supervisor] http proxy exited")
		}
	}()

	return nil
}

// Stop cancels all listener tasks and waits for sockets to be released.
func (g *Group) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
}

func (g *Group) stopLocked() {
	if g.cancel == nil {
		return
	}
	g.cancel()
	g.wg.Wait()
	g.cancel = nil
}

func (g *Group) spawn(ctx context.Context, name string, l listener) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := l.Serve(ctx); err != nil {
			log.Error().Err(err).Str("service", name).Msg("[supervisor] listener exited")
		}
	}()
}

func (g *Group) addr(port int) string {
	return g.bindHost + ":" + strconv.Itoa(port)
}

func newHTTPListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
