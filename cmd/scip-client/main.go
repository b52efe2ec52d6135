// Package main is the entrypoint for scip-client.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alonegg/scip-client/internal/config"
	"github.com/alonegg/scip-client/internal/server"
	"github.com/alonegg/scip-client/pkg/bootstrap"
	"github.com/alonegg/scip-client/pkg/commsutil"
	"github.com/alonegg/scip-client/pkg/db"
	"github.com/alonegg/scip-client/pkg/message"
	"github.com/alonegg/scip-client/pkg/scip"
	"github.com/alonegg/scip-client/pkg/semver"
	"github.com/alonegg/scip-client/pkg/transport"
)

const usage = `Usage: scip-client [command]
       scip-client serve                          Start the callback listener (HTTP, COMMS, journal).
       scip-client invoke [flags] <request.json>   Invoke a smart contract function and wait for the result.
       scip-client subscribe [flags] <request.json> Subscribe to a smart contract event and print each occurrence.
       scip-client query [flags] <request.json>    Query past event occurrences.
       scip-client gateways                       List the gateway directory.
       scip-client migrate up                     Run journal migrations.
       scip-client migrate down                   Drop the operation journal.
       scip-client migrate status                 Show migration status.
       scip-client ensure-db [name]               Create database if missing (default name: scip_journal_test). Uses DATABASE_URL host/user.
       scip-client clear                          Truncate the operation journal; schema is preserved.

Commands:
  serve           (default) Start the client runtime and accept gateway callbacks.
  invoke          Send Invoke; the result arrives on the callback listener started for the call.
  subscribe       Send Subscribe; runs until -max events, a gateway error, or Ctrl-C.
  query           Send Query and print the occurrences.
  gateways        Print gateway names, aliases and endpoints from SCIP_GATEWAYS_FILE.
  migrate up      Run database migrations only.
  migrate down    Drop the journal table.
  migrate status  Show current migration status.
  ensure-db [name] Create database on same host as DATABASE_URL.
  clear           Truncate the journal; schema preserved.

Flags for invoke, subscribe and query:
  -endpoint REF   Gateway URL, or a name or alias from the gateway directory
                  (default SCIP_GATEWAY_URL, then the directory default).
  -wait DURATION  invoke only: give up after DURATION (default: request timeout).
  -max N          subscribe only: stop after N events (default 0, unlimited).

A request file of "-" is read from stdin. A missing correlationIdentifier is generated.

Environment: SCIP_GATEWAY_URL, SCIP_GATEWAYS_FILE, SCIP_PROTOCOL_VERSION, SCIP_CALLBACK_URL, HTTP_PORT,
COMMS_ENABLED, COMMS_URL, JOURNAL_ENABLED, DATABASE_URL, MIGRATION_PATH. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "invoke":
		if err := runInvoke(args[1:], os.Stdout); err != nil {
			log.Fatalf("scip-client invoke: %v", err)
		}
		return
	case "subscribe":
		if err := runSubscribe(args[1:], os.Stdout); err != nil {
			log.Fatalf("scip-client subscribe: %v", err)
		}
		return
	case "query":
		if err := runQuery(args[1:], os.Stdout); err != nil {
			log.Fatalf("scip-client query: %v", err)
		}
		return
	case "gateways":
		if err := runGateways(os.Stdout); err != nil {
			log.Fatalf("scip-client gateways: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("scip-client migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("scip-client migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("scip-client migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("scip-client migrate down: %v", err)
			}
		default:
			log.Fatalf("scip-client migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("scip-client clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "scip_journal_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("scip-client ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("scip-client: %v", err)
	}
}

// callFlags are shared by invoke, subscribe and query.
type callFlags struct {
	endpoint string
	wait     time.Duration
	max      int
	file     string
}

func parseCallFlags(name string, args []string, cfg *config.Config) (*callFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cf := &callFlags{}
	fs.StringVar(&cf.endpoint, "endpoint", "", "gateway URL, name or alias")
	if name == "invoke" {
		fs.DurationVar(&cf.wait, "wait", 0, "give up after this long")
	}
	if name == "subscribe" {
		fs.IntVar(&cf.max, "max", 0, "stop after this many events")
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one request file, got %d", fs.NArg())
	}
	cf.file = fs.Arg(0)
	if cf.max < 0 {
		return nil, errors.New("-max must not be negative")
	}

	gateways := bootstrap.CreateResolvedBootstrap(bootstrap.LoadBootstrapConfig(cfg.GatewaysFile))
	endpoint, err := gateways.Resolve(cf.endpoint, cfg.GatewayURL)
	if err != nil {
		return nil, fmt.Errorf("%w: pass -endpoint or set SCIP_GATEWAY_URL", err)
	}
	cf.endpoint = endpoint
	return cf, nil
}

// readRequest decodes one JSON request from path, or stdin when path is "-".
func readRequest(path string, v interface{}) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if err := commsutil.DecodePayload(data, v); err != nil {
		return fmt.Errorf("decode request %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// startRuntime loads config and starts the callback listener for a one-off call.
func startRuntime(ctx context.Context) (*config.Config, *server.Server, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg)
	if err := cfg.ValidateForServe(); err != nil {
		return nil, nil, err
	}
	s, err := server.New(ctx, server.NewParams{Config: cfg})
	if err != nil {
		return nil, nil, err
	}
	if err := s.Start(); err != nil {
		s.Shutdown(ctx)
		return nil, nil, err
	}
	return cfg, s, nil
}

func stopRuntime(cfg *config.Config, s *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	s.Shutdown(ctx)
}

func runInvoke(args []string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, s, err := startRuntime(ctx)
	if err != nil {
		return err
	}
	defer stopRuntime(cfg, s)

	cf, err := parseCallFlags("invoke", args, cfg)
	if err != nil {
		return err
	}
	var req message.InvocationRequest
	if err := readRequest(cf.file, &req); err != nil {
		return err
	}
	if req.CorrelationIdentifier == "" {
		req.CorrelationIdentifier = uuid.NewString()
	}
	if cf.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cf.wait)
		defer cancel()
	}

	resp, err := s.Client().Invoke(ctx, cf.endpoint, req).Await(context.Background())
	if err != nil {
		return err
	}
	return writeJSON(out, resp)
}

func runSubscribe(args []string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, s, err := startRuntime(ctx)
	if err != nil {
		return err
	}
	defer stopRuntime(cfg, s)

	cf, err := parseCallFlags("subscribe", args, cfg)
	if err != nil {
		return err
	}
	var req message.SubscriptionRequest
	if err := readRequest(cf.file, &req); err != nil {
		return err
	}
	if req.CorrelationIdentifier == "" {
		req.CorrelationIdentifier = uuid.NewString()
	}

	stream := s.Client().Subscribe(ctx, cf.endpoint, req)
	defer stream.Cancel()

	received := 0
	for ev := range stream.Events() {
		if err := writeJSON(out, ev); err != nil {
			return err
		}
		received++
		if cf.max > 0 && received >= cf.max {
			return nil
		}
	}
	// Ctrl-C surfaces as a canceled stream; that is a normal way to stop.
	if err := stream.Err(); err != nil && scip.KindOf(err) != scip.KindCanceled {
		return err
	}
	return nil
}

func runQuery(args []string, out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg)
	if err := cfg.ValidateForCall(); err != nil {
		return err
	}
	cf, err := parseCallFlags("query", args, cfg)
	if err != nil {
		return err
	}
	var req message.QueryRequest
	if err := readRequest(cf.file, &req); err != nil {
		return err
	}
	protocolVersion, err := semver.NormalizeProtocolVersion(cfg.ProtocolVersion)
	if err != nil {
		return err
	}

	client := scip.NewClient(scip.NewClientParams{
		Transport: transport.NewHTTPTransport(transport.HTTPTransportParams{
			Timeout:         cfg.HTTPTimeout,
			ProtocolVersion: protocolVersion,
		}),
	})
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	resp, err := client.Query(ctx, cf.endpoint, req).Await(context.Background())
	if err != nil {
		return err
	}
	return writeJSON(out, resp)
}

func runGateways(out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir := bootstrap.LoadBootstrapConfig(cfg.GatewaysFile)
	gateways := bootstrap.CreateResolvedBootstrap(dir)
	for _, name := range gateways.Names() {
		g := gateways.Get(name)
		marker := " "
		if name == dir.Default || dir.Aliases[dir.Default] == name {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-20s %-40s %s\n", marker, name, g.URL, g.ProtocolVersion)
	}
	aliases := make([]string, 0, len(dir.Aliases))
	for alias := range dir.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		fmt.Fprintf(out, "  %-20s -> %s\n", alias, dir.Aliases[alias])
	}
	return nil
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath, os.Stdout)
}

func runMigrateDown() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationDown(ctx, pool)
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearJournal(ctx, pool); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	if err := db.EnsureDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}
