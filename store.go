package rediskv

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raniellyferreira/redis-inmemory-kv/httpapi"
	"github.com/raniellyferreira/redis-inmemory-kv/server"
	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// shutdownTimeout bounds how long Close waits for HTTP requests in flight
const shutdownTimeout = 5 * time.Second

// Store is an in-memory Redis-compatible key-value store together with
// its optional RESP server and HTTP admin API
type Store struct {
	// Configuration
	config *config

	// Components
	storage *storage.MemoryStorage
	server  *server.Server
	api     *httpapi.API
	http    *http.Server

	httpListener net.Listener

	// State
	mu      sync.RWMutex
	started bool
	closed  bool

	// Statistics (exported for monitoring)
	Stats Stats
}

// New creates a new Store with the given options
//
// The store is usable as a library right away. Start brings up the network
// listeners.
//
// Example:
//
//	store, err := rediskv.New(
//		rediskv.WithAddr(":6379"),
//		rediskv.WithHTTPAddr(":8080"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
func New(opts ...Option) (*Store, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	stor := storage.NewMemory(storage.WithShardCount(cfg.shardCount))

	s := &Store{
		config:  cfg,
		storage: stor,
		Stats: Stats{
			CommandsProcessed: make(map[string]int64),
		},
	}

	stor.AddObserver(&statsObserver{storage: stor, stats: &s.Stats, metrics: cfg.metrics})

	if cfg.enableServer {
		s.server = server.NewServer(cfg.addr, stor)
		s.server.SetPassword(cfg.password)
		s.server.SetReadTimeout(cfg.readTimeout)
		s.server.SetScriptTimeout(cfg.scriptTimeout)
		s.server.SetLogger(&serverLogger{logger: cfg.logger})
		s.server.SetMetrics(&metricsAdapter{stats: &s.Stats, metrics: cfg.metrics})
	}

	if cfg.httpAddr != "" {
		s.api = httpapi.New(stor, s.GetInfo, cfg.corsOrigins)
		s.http = &http.Server{
			Handler:           s.api,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// Start binds the RESP server and the HTTP admin API, if enabled.
// When one of them fails to bind the other is shut down and the store is closed.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if s.started {
		return nil // Already started
	}

	g, _ := errgroup.WithContext(ctx)

	if s.server != nil {
		g.Go(func() error {
			if err := s.server.Start(); err != nil {
				return &ConnectionError{Addr: s.config.addr, Err: err}
			}
			return nil
		})
	}

	if s.http != nil {
		g.Go(func() error {
			ln, err := net.Listen("tcp", s.config.httpAddr)
			if err != nil {
				return &ConnectionError{Addr: s.config.httpAddr, Err: err}
			}
			s.httpListener = ln
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.config.logger.Error("Failed to start store", Field{Key: "error", Value: err})
		s.stopListeners()
		s.closed = true
		return err
	}

	if s.httpListener != nil {
		go func(ln net.Listener) {
			if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.config.logger.Error("HTTP server failed", Field{Key: "error", Value: err})
			}
		}(s.httpListener)
		s.config.logger.Info("HTTP admin API listening", Field{Key: "addr", Value: s.httpListener.Addr().String()})
	}

	s.Stats.mu.Lock()
	s.Stats.StartedAt = time.Now()
	s.Stats.mu.Unlock()

	s.started = true
	return nil
}

// stopListeners stops whatever Start brought up
func (s *Store) stopListeners() {
	if s.server != nil {
		if err := s.server.Stop(); err != nil {
			s.config.logger.Error("Error stopping server", Field{Key: "error", Value: err})
		}
	}
	if s.httpListener != nil {
		s.httpListener.Close()
		s.httpListener = nil
	}
}

// Close gracefully shuts down the network listeners and the storage
//
// Example:
//
//	defer store.Close()
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if s.started {
		if s.server != nil {
			if err := s.server.Stop(); err != nil {
				s.config.logger.Error("Error stopping server", Field{Key: "error", Value: err})
			}
		}

		if s.httpListener != nil {
			// Websocket streams are hijacked and not tracked by Shutdown
			s.api.Close()

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.http.Shutdown(ctx); err != nil {
				s.config.logger.Error("Error stopping HTTP server", Field{Key: "error", Value: err})
			}
		}
	}

	return s.storage.Close()
}

// Storage returns the underlying storage for direct access
//
// Example:
//
//	n, err := store.Storage().Incr("counter")
func (s *Store) Storage() storage.Storage {
	return s.storage
}

// Addr returns the RESP server's listening address, or "" when the server is disabled
func (s *Store) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// HTTPAddr returns the admin API's listening address, or "" when it is not running
func (s *Store) HTTPAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GetInfo returns storage, server and version information
//
// Example:
//
//	info := store.GetInfo()
//	fmt.Printf("Key count: %v\n", info["keys"])
func (s *Store) GetInfo() map[string]interface{} {
	info := s.storage.Info()

	if s.server != nil {
		serverInfo := s.server.Stats()
		serverInfo["run_id"] = s.server.RunID()
		serverInfo["addr"] = s.server.Addr()
		info["server"] = serverInfo
	}

	info["stats"] = s.Stats.Snapshot()
	info["version"] = VersionInfo()

	return info
}
