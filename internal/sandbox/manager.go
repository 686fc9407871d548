// Package sandbox implements the per-project Sandbox Lifecycle (C8): binding
// an HTTP router to a host-selected port, and the bearer/basic-auth surface
// each running sandbox exposes (§6).
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/c2b"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/ledger"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/pipeline"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/registry"
	"github.com/OmentaElvis/pesa-playground-sub000/internal/store"
)

var (
	ErrAlreadyRunning = errors.New("sandbox already running for this project")
	ErrNotRunning      = errors.New("no live sandbox for this project")
)

// Deps bundles the process-wide singletons every sandbox router is built
// against (§5's four pieces of shared mutable state, plus the stores and
// flows those pieces drive).
type Deps struct {
	Store          store.Store
	Ledger         *ledger.Ledger
	Registry       *registry.Registry
	Events         *events.Bus
	Hub            *events.Hub
	Pipeline            *pipeline.Pipeline
	C2B                 *c2b.Flow
	AccessTokenTTL      time.Duration
	RegistryWaitTimeout time.Duration
	Log                 *zap.Logger
}

// liveSandbox is one entry in the process-wide handle map named in §4.8.
type liveSandbox struct {
	projectID string
	port      int
	server    *http.Server
	cancel    context.CancelFunc
	done      chan struct{}
}

// Manager owns the process-wide map of live sandboxes. At most one sandbox
// may be live per project id at a time (§4.8).
type Manager struct {
	deps Deps

	mu   sync.Mutex
	live map[string]*liveSandbox
}

func New(deps Deps) *Manager {
	if deps.Log == nil {
		deps.Log = zap.L()
	}
	return &Manager{deps: deps, live: make(map[string]*liveSandbox)}
}

// Info is the read-only view of a live sandbox returned by Status/List.
type Info struct {
	ProjectID string
	Port      int
}

// Start binds a listener on an ephemeral port, builds a router scoped to
// the project's credentials, and spawns the serve loop. It emits a
// sandbox_status "on" event on success (§4.8).
func (m *Manager) Start(ctx context.Context, projectID string) (int, error) {
	m.mu.Lock()
	if _, exists := m.live[projectID]; exists {
		m.mu.Unlock()
		return 0, ErrAlreadyRunning
	}
	m.mu.Unlock()

	project, err := m.deps.Store.GetProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("load project: %w", err)
	}
	business, err := m.deps.Store.GetBusiness(ctx, project.BusinessId)
	if err != nil {
		return 0, fmt.Errorf("load business: %w", err)
	}
	cred, err := m.deps.Store.GetCredential(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("load credential: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("bind listener: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	// bgCtx outlives the originating RPC call; every pipeline spawned off a
	// request to this sandbox observes it, so Stop cancels in-flight work
	// instead of leaving it to post a callback after the sandbox is gone.
	bgCtx, cancel := context.WithCancel(context.Background())
	router := newRouter(m.deps, project, business, cred, bgCtx)
	srv := &http.Server{Handler: router}

	entry := &liveSandbox{projectID: projectID, port: port, server: srv, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if _, exists := m.live[projectID]; exists {
		m.mu.Unlock()
		cancel()
		listener.Close()
		return 0, ErrAlreadyRunning
	}
	m.live[projectID] = entry
	m.mu.Unlock()

	go func() {
		defer close(entry.done)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.deps.Log.Error("sandbox serve loop exited with error", zap.String("project_id", projectID), zap.Error(err))
		}
	}()

	m.deps.Hub.Emit(events.EventSandboxStatus, statusPayload{ProjectId: projectID, Port: port, Status: "on"})
	m.deps.Log.Info("sandbox started", zap.String("project_id", projectID), zap.Int("port", port))
	return port, nil
}

// Stop fires the project's cancellation handle and gracefully shuts down
// its HTTP server, removing the map entry (§4.8).
func (m *Manager) Stop(ctx context.Context, projectID string, timeout time.Duration) error {
	m.mu.Lock()
	entry, exists := m.live[projectID]
	if exists {
		delete(m.live, projectID)
	}
	m.mu.Unlock()
	if !exists {
		return ErrNotRunning
	}

	entry.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, timeout)
	defer shutdownCancel()
	err := entry.server.Shutdown(shutdownCtx)
	<-entry.done

	m.deps.Hub.Emit(events.EventSandboxStatus, statusPayload{ProjectId: projectID, Port: entry.port, Status: "off"})
	m.deps.Log.Info("sandbox stopped", zap.String("project_id", projectID))
	return err
}

// Status reports whether a sandbox is live for projectID and its port.
func (m *Manager) Status(projectID string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, exists := m.live[projectID]
	if !exists {
		return Info{}, false
	}
	return Info{ProjectID: entry.projectID, Port: entry.port}, true
}

// List returns every currently live sandbox.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.live))
	for _, entry := range m.live {
		out = append(out, Info{ProjectID: entry.projectID, Port: entry.port})
	}
	return out
}

// StopAll fires every live sandbox's handle, used on host SIGINT/SIGTERM
// (§4.8's "on host exit every live handle is fired"). Per-sandbox shutdown
// errors are aggregated with multierr rather than abandoning the rest of
// the fleet on the first failure.
func (m *Manager) StopAll(ctx context.Context, timeout time.Duration) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var errs error
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := m.Stop(gctx, id, timeout); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("stop sandbox %s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

type statusPayload struct {
	ProjectId string `json:"project_id"`
	Port      int    `json:"port"`
	Status    string `json:"status"`
}
