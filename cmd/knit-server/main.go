package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/atvirokodosprendimai/knitu/internal/config"
	"github.com/atvirokodosprendimai/knitu/internal/db"
	"github.com/atvirokodosprendimai/knitu/internal/health"
	"github.com/atvirokodosprendimai/knitu/internal/messaging"
	"github.com/atvirokodosprendimai/knitu/internal/node"
	"github.com/atvirokodosprendimai/knitu/internal/server/api"
	"github.com/atvirokodosprendimai/knitu/internal/server/discovery"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "knit-server",
		Usage:   "A Knit cluster node: registers itself, emits health gauges and serves the node registry.",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start the node, its HTTP API and (optionally) an embedded NATS server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Usage: "Path to a YAML config file"},
					&cli.StringFlag{Name: "name", Usage: "Node display name (default: hostname)"},
					&cli.StringFlag{Name: "data-dir", Usage: "Directory holding the node identity file"},
					&cli.StringFlag{Name: "http-addr", Usage: "HTTP server bind address"},
					&cli.StringFlag{Name: "external-uri", Usage: "URI other nodes use to reach this node's HTTP API"},
					&cli.StringFlag{Name: "db-path", Usage: "Path to the SQLite database file"},
					&cli.StringFlag{Name: "nats-url", Usage: "External NATS server URL; embedded server is used when empty"},
					&cli.StringFlag{Name: "nats-addr", Usage: "Embedded NATS server bind address (host:port)"},
					&cli.DurationFlag{Name: "register-interval", Usage: "Interval between node registrations"},
					&cli.DurationFlag{Name: "metrics-interval", Usage: "Interval between node metric emissions"},
					&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)"},
					&cli.BoolFlag{Name: "log-json", Usage: "Log as JSON instead of console output"},
				},
				Action: runServer,
			},
			{
				Name:  "id",
				Usage: "Print the node identity, creating it if absent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Usage: "Path to a YAML config file"},
					&cli.StringFlag{Name: "data-dir", Usage: "Directory holding the node identity file"},
					&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)"},
					&cli.BoolFlag{Name: "log-json", Usage: "Log as JSON instead of console output"},
				},
				Action: printIdentity,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("knit-server failed")
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"name":         &cfg.Node.Name,
		"data-dir":     &cfg.Node.DataDir,
		"http-addr":    &cfg.HTTP.Addr,
		"external-uri": &cfg.HTTP.ExternalURI,
		"db-path":      &cfg.Database.Path,
		"nats-url":     &cfg.NATS.URL,
		"nats-addr":    &cfg.NATS.Addr,
		"log-level":    &cfg.Log.Level,
	}
	for flag, field := range overrides {
		if cmd.IsSet(flag) {
			*field = cmd.String(flag)
		}
	}
	if cmd.IsSet("register-interval") {
		cfg.Node.RegisterInterval = cmd.Duration("register-interval")
	}
	if cmd.IsSet("metrics-interval") {
		cfg.Node.MetricsInterval = cmd.Duration("metrics-interval")
	}
	if cmd.IsSet("log-json") {
		cfg.Log.JSON = cmd.Bool("log-json")
	}
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.JSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func resolveIdentity(cfg *config.Config) (node.Identity, error) {
	if err := os.MkdirAll(cfg.Node.DataDir, 0o700); err != nil {
		return node.Identity{}, fmt.Errorf("could not create data directory: %w", err)
	}
	identity, err := (&node.IdentityFile{Path: cfg.IdentityPath()}).Resolve()
	if err != nil {
		return node.Identity{}, fmt.Errorf("failed to resolve node identity: %w", err)
	}
	return identity, nil
}

func printIdentity(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)
	identity, err := resolveIdentity(cfg)
	if err != nil {
		return err
	}
	fmt.Println(identity.String())
	return nil
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)
	log.Info().Str("version", version).Msg("Starting Knit node...")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Resolve node identity; any failure here is fatal.
	identity, err := resolveIdentity(cfg)
	if err != nil {
		return err
	}
	log.Info().Str("node_id", identity.String()).Msg("Node ID")

	externalURI, err := cfg.ExternalURI()
	if err != nil {
		return err
	}

	// 2. Initialize Database
	gormDB, err := db.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	store := db.NewStore(gormDB)

	// 3. Node registry components
	clock := time2.DefaultClock
	collector := health.NewSystemCollector()
	registrar, err := node.NewRegistrar(identity, node.LocalInfo{
		Name:            cfg.Node.Name,
		HTTPExternalURI: externalURI,
		Version:         version,
	}, store, collector, clock)
	if err != nil {
		return err
	}
	emitter, err := node.NewEmitter(identity, store, collector, clock, cfg.Node.MetricsInterval)
	if err != nil {
		return err
	}
	liveness := node.NewLiveness(store, clock)

	// 4. NATS: external broker or embedded server
	natsURL := cfg.NATS.URL
	if natsURL == "" {
		ns, err := startEmbeddedNATS(cfg.NATS.Addr)
		if err != nil {
			return err
		}
		defer ns.Shutdown()
		natsURL = ns.ClientURL()
	}
	nc, err := messaging.Connect(natsURL, "knit-"+identity.String())
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	broadcaster := messaging.NewBroadcaster(nc, liveness, identity, clock)
	sub, err := broadcaster.Subscribe(clusterMessageHandler)
	if err != nil {
		return fmt.Errorf("failed to subscribe to cluster messages: %w", err)
	}
	defer sub.Unsubscribe()

	// 5. Background jobs
	discoverySvc := discovery.NewService(registrar, cfg.Node.RegisterInterval)
	discoverySvc.Start(ctx)
	defer discoverySvc.Stop()
	emitter.Start(ctx)
	defer emitter.Stop()

	// 6. HTTP API
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(liveness, registrar, broadcaster),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("external_uri", externalURI.String()).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func startEmbeddedNATS(addr string) (*server.Server, error) {
	host, port, err := config.HostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid nats-addr format: %w", err)
	}
	ns, err := server.NewServer(&server.Options{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("could not start embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(4 * time.Second) {
		return nil, fmt.Errorf("embedded NATS server did not become ready")
	}
	log.Info().Str("addr", addr).Msg("Embedded NATS server started")
	return ns, nil
}

func clusterMessageHandler(msg messaging.ClusterMessage) {
	log.Info().
		Str("type", msg.Type).
		Str("origin", msg.Origin.String()).
		Time("sent_at", msg.SentAt).
		Msg("Cluster message received")
}
