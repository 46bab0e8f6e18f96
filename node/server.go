// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/rillrate-fossil/rillrate-sub001/admission"
	"github.com/rillrate-fossil/rillrate-sub001/engine"
	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// Server is a rillrate node.
type Server struct {
	config   Config
	logger   *slog.Logger
	hub      *engine.Hub
	metrics  *metrics
	upgrader websocket.Upgrader

	providers *admission.ConnectionLimiter[uuid.UUID, *providerConn]
	clients   *admission.ConnectionLimiter[uuid.UUID, *session]

	mu     sync.Mutex
	routes map[string]*route

	ready        chan struct{}
	providerAddr net.Addr
	httpAddr     net.Addr
	serving      sync.WaitGroup
}

// route is the provider currently serving a path.
type route struct {
	provider     *providerConn
	description  flow.Description
	registration *engine.Registration
}

// NewServer creates a node. Call Run to start listening, or use
// Handler and ConnectProvider to embed it.
func NewServer(config Config) *Server {
	config.applyDefaults()
	logger := config.Logger
	return &Server{
		config:  config,
		logger:  logger,
		hub:     engine.NewHub(engine.HubConfig{Clock: config.Clock, Logger: logger}),
		metrics: newMetrics(config.Registerer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Dashboards may be served from any origin; what they can
			// see is governed by the session ACL.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		providers: admission.NewConnectionLimiter[uuid.UUID, *providerConn](config.ProviderLimit),
		clients:   admission.NewConnectionLimiter[uuid.UUID, *session](config.ClientLimit),
		routes:    make(map[string]*route),
		ready:     make(chan struct{}),
	}
}

// Hub returns the node's own hub, which holds the registry of every
// path declared by connected providers.
func (s *Server) Hub() *engine.Hub { return s.hub }

// Ready is closed once Run has bound its listeners.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// ProviderAddr returns the bound provider address, or nil. Valid after
// Ready.
func (s *Server) ProviderAddr() net.Addr { return s.providerAddr }

// HTTPAddr returns the bound HTTP address, or nil. Valid after Ready.
func (s *Server) HTTPAddr() net.Addr { return s.httpAddr }

// Handler returns the HTTP handler serving dashboards, metrics and
// status.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
	mux.Handle(s.config.MetricsPath, s.metrics.handler)
	mux.HandleFunc(s.config.StatusPath, s.handleStatus)
	return mux
}

// Run listens on the configured addresses and serves until ctx ends.
// On return every connection has been closed and the node's hub is
// shut down.
func (s *Server) Run(ctx context.Context) error {
	var providerListener, httpListener net.Listener
	var err error
	if s.config.ProviderAddress != "" {
		providerListener, err = net.Listen("tcp", s.config.ProviderAddress)
		if err != nil {
			return fmt.Errorf("listening for providers on %s: %w", s.config.ProviderAddress, err)
		}
		s.providerAddr = providerListener.Addr()
	}
	if s.config.HTTPAddress != "" {
		httpListener, err = net.Listen("tcp", s.config.HTTPAddress)
		if err != nil {
			if providerListener != nil {
				providerListener.Close()
			}
			return fmt.Errorf("listening for dashboards on %s: %w", s.config.HTTPAddress, err)
		}
		s.httpAddr = httpListener.Addr()
	}
	httpServer := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	s.logger.Info("node started",
		"name", s.config.Name,
		"provider_address", addrString(s.providerAddr),
		"http_address", addrString(s.httpAddr),
	)
	close(s.ready)

	group, groupCtx := errgroup.WithContext(ctx)
	if providerListener != nil {
		group.Go(func() error {
			return s.acceptProviders(groupCtx, providerListener)
		})
	}
	if httpListener != nil {
		group.Go(func() error {
			if err := httpServer.Serve(httpListener); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving http: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		if providerListener != nil {
			providerListener.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		s.closeConnections()
		return nil
	})

	err = group.Wait()
	s.Close()
	s.logger.Info("node stopped")
	return err
}

// Close disconnects every provider and session, waits for their
// handlers to return and shuts the node's hub down. Run calls it on
// the way out; an embedding process serving Handler itself calls it
// after stopping its HTTP server.
func (s *Server) Close() {
	s.closeConnections()
	s.serving.Wait()
	s.hub.Close()
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

func (s *Server) acceptProviders(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting provider: %w", err)
		}
		go func() {
			if err := s.ConnectProvider(ctx, conn); err != nil {
				s.logger.Info("provider connection ended", "remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// closeConnections interrupts every provider and session.
func (s *Server) closeConnections() {
	for _, provider := range s.providers.Values() {
		provider.interrupt()
	}
	for _, sess := range s.clients.Values() {
		sess.evict(websocket.CloseGoingAway, "node shutting down")
	}
}

// SetLimits installs new connection limits. Connections above a
// lowered limit are closed, oldest first.
func (s *Server) SetLimits(providers, clients admission.Limit) {
	for _, provider := range s.providers.SetLimit(providers) {
		s.logger.Info("evicting provider over lowered limit", "provider", provider.name, "connection", provider.id.String())
		s.metrics.evicted.WithLabelValues("provider").Inc()
		provider.interrupt()
	}
	for _, sess := range s.clients.SetLimit(clients) {
		s.logger.Info("evicting session over lowered limit", "connection", sess.id.String())
		s.metrics.evicted.WithLabelValues("client").Inc()
		sess.evict(websocket.CloseTryAgainLater, "connection limit lowered")
	}
}

// claimRoute makes provider the server of description's path. A path
// already served by another provider stays with it.
func (s *Server) claimRoute(provider *providerConn, description flow.Description) {
	if description.Path.IsHidden() {
		provider.logger.Warn("ignoring declaration of hidden path", "path", description.Path.String())
		return
	}

	key := description.Path.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.routes[key]; ok {
		if existing.provider != provider {
			provider.logger.Warn("path already provided by another provider",
				"path", description.Path.String(), "owner", existing.provider.name)
			return
		}
		existing.registration.Close()
	}
	s.routes[key] = &route{
		provider:     provider,
		description:  description,
		registration: s.hub.Declare(description),
	}
	s.metrics.paths.Set(float64(len(s.routes)))
}

// releaseRoute withdraws path if provider serves it.
func (s *Server) releaseRoute(provider *providerConn, path ref.Path) {
	key := path.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.routes[key]; ok && existing.provider == provider {
		delete(s.routes, key)
		existing.registration.Close()
		s.metrics.paths.Set(float64(len(s.routes)))
	}
}

// releaseProvider withdraws every path of provider.
func (s *Server) releaseProvider(provider *providerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, existing := range s.routes {
		if existing.provider == provider {
			delete(s.routes, key)
			existing.registration.Close()
		}
	}
	s.metrics.paths.Set(float64(len(s.routes)))
}

func (s *Server) route(path ref.Path) (*route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[path.Key()]
	return r, ok
}

// Status is the document served at the status path.
type Status struct {
	Name          string `json:"name"`
	Providers     int    `json:"providers"`
	ProviderLimit int    `json:"provider_limit"`
	Sessions      int    `json:"sessions"`
	ClientLimit   int    `json:"client_limit"`
	Paths         int    `json:"paths"`
}

// Status returns the current connection and path counts.
func (s *Server) Status() Status {
	s.mu.Lock()
	paths := len(s.routes)
	s.mu.Unlock()
	return Status{
		Name:          s.config.Name,
		Providers:     s.providers.Len(),
		ProviderLimit: s.providers.Limit().Total,
		Sessions:      s.clients.Len(),
		ClientLimit:   s.clients.Limit().Total,
		Paths:         paths,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.logger.Debug("writing status failed", "error", err)
	}
}
