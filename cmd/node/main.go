package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"overlaysearch/internal/bootstrap"
	"overlaysearch/internal/cde"
	"overlaysearch/internal/config"
	"overlaysearch/internal/directory"
	"overlaysearch/internal/domain"
	"overlaysearch/internal/logger"
	zapfactory "overlaysearch/internal/logger/zap"
	"overlaysearch/internal/lse"
	"overlaysearch/internal/metrics"
	"overlaysearch/internal/repl"
	"overlaysearch/internal/search"
	"overlaysearch/internal/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	cfg.ApplyDefaults()
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	dir := directory.New(cfg.Directory)

	space, err := domain.NewSpace(cfg.Chord.IDBits)
	if err != nil {
		log.Fatalf("failed to initialize identifier space: %v", err)
	}

	appAddr := net.JoinHostPort(cfg.Node.Host, strconv.Itoa(cfg.Chord.AppPort))
	var id domain.ID
	if cfg.Node.Id == "" {
		id = space.NewIdFromString(cfg.Node.Host)
	} else {
		id, err = space.FromHexString(cfg.Node.Id)
		if err != nil {
			log.Fatalf("invalid node ID in configuration: %v", err)
		}
	}
	self := &domain.Node{ID: id, Addr: appAddr}
	lgr = lgr.Named("node").With(logger.FNode("self", self))
	lgr.Info("node initializing", logger.F("number", cfg.Node.Number))

	shutdownTracer := telemetry.InitTracer(cfg.Telemetry, "overlaysearch-node", id)
	defer func() { _ = shutdownTracer(context.Background()) }()

	met := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			if err := met.Serve(context.Background(), cfg.Metrics.Listen); err != nil {
				lgr.Warn("metrics server stopped", logger.F("err", err))
			}
		}()
	}

	searchLayer, err := search.New(space, self, cfg.Node.Bind, cfg.Search.SLPort, lgr.Named("search"))
	if err != nil {
		lgr.Error("failed to initialize search layer", logger.F("err", err))
		os.Exit(1)
	}

	cdeEngine, err := cde.NewEngine(cfg.Chord, cfg.Node.Bind, self, dir, searchLayer, met, lgr.Named("cde"))
	if err != nil {
		lgr.Error("failed to initialize cde engine", logger.F("err", err))
		os.Exit(1)
	}
	searchLayer.SetEngine(cdeEngine)

	lseEngine, err := lse.NewEngine(cfg.Routing, cfg.Node.Host, dir, met, lgr.Named("lse"))
	if err != nil {
		lgr.Error("failed to initialize lse engine", logger.F("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineErr := make(chan error, 3)
	go func() { engineErr <- cdeEngine.Run(ctx) }()
	go func() { engineErr <- lseEngine.Run(ctx) }()
	go func() { engineErr <- searchLayer.Run(ctx) }()

	if err := joinRing(ctx, cfg, dir, self, cdeEngine, lgr); err != nil {
		lgr.Error("failed to join ring", logger.F("err", err))
		os.Exit(1)
	}

	if cfg.Search.CorpusPath != "" {
		go func() {
			if err := searchLayer.Ingest(ctx, cfg.Search.CorpusPath); err != nil {
				lgr.Warn("corpus ingestion failed", logger.F("err", err))
			}
		}()
	}

	console := repl.New(fmt.Sprintf("overlaysearch[%d]> ", cfg.Node.Number), cdeEngine, lseEngine, searchLayer)
	go console.Run(ctx)

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received")
	case err := <-engineErr:
		lgr.Error("engine terminated unexpectedly", logger.F("err", err))
		stop()
	}

	lgr.Info("shutdown summary", logger.F("average_hop_count", met.AverageHopCount()))
}

// joinRing resolves this node's bootstrap peer and joins the Chord ring, or
// (mode=init) makes it the ring's landmark. Bootstrap resolves peers as
// addresses (DNS/static lists), but CDE's Join operates on directory node
// numbers, so a resolved peer only works as a Join target when its host is
// also a directory entry — true by construction in the static-directory
// deployments this node targets.
func joinRing(ctx context.Context, cfg *config.Config, dir *directory.Directory, self *domain.Node, cdeEngine *cde.Engine, lgr logger.Logger) error {
	if cfg.Bootstrap.Mode == "init" {
		if err := cdeEngine.Join(cfg.Node.Number, cfg.Node.Number); err != nil {
			return err
		}
		lgr.Info("landmark ring created")
		return nil
	}

	var boot bootstrap.Bootstrap
	switch cfg.Bootstrap.Mode {
	case "static":
		boot = bootstrap.NewStaticBootstrap(cfg.Bootstrap.Peers)
	case "dns":
		boot = bootstrap.NewDynamicBootstrap(cfg.Bootstrap, lgr.Named("bootstrap"))
	default:
		return fmt.Errorf("unsupported bootstrap mode: %s", cfg.Bootstrap.Mode)
	}

	discCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	peers, err := boot.Discover(discCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("bootstrap discovery: %w", err)
	}

	for _, peer := range peers {
		host, _, err := net.SplitHostPort(peer)
		if err != nil {
			continue
		}
		number, ok := dir.NumberFor(host)
		if !ok {
			continue
		}
		if err := cdeEngine.Join(number, cfg.Node.Number); err != nil {
			lgr.Warn("join attempt failed", logger.F("peer", peer), logger.F("err", err))
			continue
		}
		regCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := boot.Register(regCtx, self); err != nil {
			lgr.Warn("node registration failed", logger.F("err", err))
		}
		cancel()
		return nil
	}
	return fmt.Errorf("no bootstrap peer resolved to a directory entry")
}
