// Package rpc implements the RPC Surface (§4.7/§6): a REST+SSE control
// plane for creating, publishing, reconfiguring, and rebuilding Nexus
// instances. Framing is left to this expansion (spec.md delegates it);
// it follows the teacher's own pkg/controlplane/api shape: a go-chi
// router, RFC 7807 problem+json error bodies, and bearer-JWT middleware.
package rpc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nexusd/nexuscore/internal/logger"
	"github.com/nexusd/nexuscore/pkg/config"
	"github.com/nexusd/nexuscore/pkg/notify"
	"github.com/nexusd/nexuscore/pkg/nexus"
	"github.com/nexusd/nexuscore/pkg/publish"
)

// Server wires the Nexus process-wide Registry, the rebuild/publish
// layers, and the notification bus behind an HTTP handler.
type Server struct {
	httpServer *http.Server
	registry   *nexus.Registry
	bus        *notify.Bus
	verifier   *Verifier
	validate   *validator.Validate

	rebuildCfg config.RebuildConfig
	publishCfg config.PublishConfig

	mu         sync.Mutex
	publishers map[string]*publish.Manager

	// baseCtx parents background work (rebuild jobs) that must outlive the
	// HTTP request that started it. It is set once, before Start's listener
	// goroutine is spawned, so no lock is needed to read it afterward.
	baseCtx context.Context
}

// NewServer constructs a Server. registry and bus are shared with the
// reactor/reconfiguration/rebuild layers; cfg carries the RPC listen
// address, timeouts, and JWT verification settings.
func NewServer(cfg config.RPCConfig, rebuildCfg config.RebuildConfig, publishCfg config.PublishConfig, registry *nexus.Registry, bus *notify.Bus) *Server {
	s := &Server{
		registry:   registry,
		bus:        bus,
		verifier:   NewVerifier(cfg.JWT),
		validate:   validator.New(),
		rebuildCfg: rebuildCfg,
		publishCfg: publishCfg,
		publishers: make(map[string]*publish.Manager),
		baseCtx:    context.Background(),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Start serves the RPC surface until ctx is cancelled, then gracefully
// shuts down.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	errCh := make(chan error, 1)
	go func() {
		logger.Info("RPC surface listening", logger.TargetAddr(s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("RPC surface failed: %w", err)
	}
}

// Stop gracefully shuts down the RPC surface.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// publisherFor returns (creating if needed) the publish.Manager for name.
func (s *Server) publisherFor(n *nexus.Nexus) *publish.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.publishers[n.Name]; ok {
		return m
	}
	m := publish.NewManager(n, s.listenAddrFor, s.publishCfg.DrainTimeout)
	s.publishers[n.Name] = m
	return m
}

// publishedURIFor returns n's current publication endpoint, or "" if it has
// never been published or has since been unpublished.
func (s *Server) publishedURIFor(name string) string {
	s.mu.Lock()
	mgr, ok := s.publishers[name]
	s.mu.Unlock()
	if !ok {
		return ""
	}
	desc := mgr.Descriptor()
	if desc == nil {
		return ""
	}
	return desc.Endpoint
}

func (s *Server) listenAddrFor(protocol publish.Protocol) string {
	switch protocol {
	case publish.ProtocolNVMf:
		return s.publishCfg.NVMf.ListenAddr
	case publish.ProtocolISCSI:
		return s.publishCfg.ISCSI.ListenAddr
	default:
		return ""
	}
}
