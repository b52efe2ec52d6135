// Package server wires the SCIP client runtime: callback listener, COMMS relay,
// operation journal, metrics and health endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/alonegg/scip-client/internal/config"
	"github.com/alonegg/scip-client/pkg/commsutil"
	"github.com/alonegg/scip-client/pkg/correlation"
	"github.com/alonegg/scip-client/pkg/db"
	"github.com/alonegg/scip-client/pkg/dispatcher"
	"github.com/alonegg/scip-client/pkg/events"
	"github.com/alonegg/scip-client/pkg/jsonrpc"
	"github.com/alonegg/scip-client/pkg/metrics"
	"github.com/alonegg/scip-client/pkg/scip"
	"github.com/alonegg/scip-client/pkg/semver"
	"github.com/alonegg/scip-client/pkg/transport"
)

const logPrefix = "server:server"

// NewParams holds parameters for New.
type NewParams struct {
	Config *config.Config
	// Transport overrides the HTTP transport built from Config.
	Transport transport.Transport
	// Conn is used instead of dialing COMMS_URL when set. New does not take ownership.
	Conn *comms.Conn
}

// Server is the scip-client runtime.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	ownsConn   bool
	pool       *pgxpool.Pool
	journal    journalReader
	registry   *correlation.Registry
	metrics    *metrics.Metrics
	client     *scip.Client
	dispatcher *dispatcher.Dispatcher
	commsSub   *comms.Subscription
	listener   net.Listener
	httpServer *http.Server
}

// SetupLogging installs the default slog logger at the configured level.
func SetupLogging(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

// New builds the runtime without starting the listener. Resources acquired here are
// released by Shutdown, or by New itself on error.
func New(ctx context.Context, params NewParams) (_ *Server, err error) {
	cfg := params.Config
	protocolVersion, err := semver.NormalizeProtocolVersion(cfg.ProtocolVersion)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}

	s := &Server{cfg: cfg, registry: correlation.NewRegistry()}
	defer func() {
		if err != nil {
			s.release()
		}
	}()
	s.metrics = metrics.New(s.registry.Len)

	var publishers []events.EventPublisher

	// Step 1: COMMS for the callback relay and lifecycle events
	if params.Conn != nil {
		s.nc = params.Conn
	} else if cfg.COMMSEnabled {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		s.nc = nc
		s.ownsConn = true
	}
	if s.nc != nil {
		publishers = append(publishers, events.NewCommsPublisher(s.nc, &events.CommsPublisherOpts{GlobalSubject: cfg.EventSubject}))
	}

	// Step 2: operation journal
	if cfg.JournalEnabled {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		journal := db.NewJournal(pool)
		s.journal = journal
		publishers = append(publishers, db.NewJournalPublisher(journal))
	}

	// Step 3: executor and callback dispatcher
	tr := params.Transport
	if tr == nil {
		tr = transport.NewHTTPTransport(transport.HTTPTransportParams{
			Timeout:         cfg.HTTPTimeout,
			ProtocolVersion: protocolVersion,
		})
	}
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if len(publishers) > 0 {
		publisher = events.NewMultiPublisher(publishers...)
	}
	s.client = scip.NewClient(scip.NewClientParams{
		Registry:             s.registry,
		Transport:            tr,
		IDs:                  jsonrpc.NewIDGenerator(),
		Publisher:            publisher,
		Metrics:              s.metrics,
		CallbackURL:          cfg.EffectiveCallbackURL(),
		DefaultInvokeTimeout: cfg.DefaultInvokeTimeout,
	})
	s.dispatcher = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Registry: s.registry,
		Metrics:  s.metrics,
	})

	s.httpServer = &http.Server{Handler: s.routes()}
	return s, nil
}

// Start binds the HTTP listener and subscribes to the COMMS callback subject.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, s.cfg.ListenAddr(), err)
	}
	s.listener = ln

	if s.nc != nil {
		sub, err := s.dispatcher.SubscribeComms(s.nc, s.cfg.CallbackSubject)
		if err != nil {
			ln.Close()
			return err
		}
		s.commsSub = sub
	}

	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP listener on %s (callbacks at %s)", logPrefix, ln.Addr(), s.cfg.CallbackPath))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Client returns the invocation executor.
func (s *Server) Client() *scip.Client {
	return s.client
}

// Shutdown stops accepting callbacks, cancels pending operations and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.commsSub != nil {
		if err := s.commsSub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.listener != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	pending := s.registry.Len()
	if pending > 0 {
		slog.Info(fmt.Sprintf("%s - Canceling %d pending operation(s)", logPrefix, pending))
	}
	s.client.Close()
	s.release()
	return errors.Join(errs...)
}

func (s *Server) release() {
	if s.client != nil {
		s.client.Close()
	}
	if s.nc != nil && s.ownsConn {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting scip-client (protocol %s)", logPrefix, cfg.ProtocolVersion))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, NewParams{Config: cfg})
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		s.release()
		return err
	}
	slog.Info(fmt.Sprintf("%s - scip-client is ready, gateways should call back %s", logPrefix, cfg.EffectiveCallbackURL()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - shutdown: %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
