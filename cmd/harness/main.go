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
	"overlaysearch/internal/harness"
	"overlaysearch/internal/logger"
	zapfactory "overlaysearch/internal/logger/zap"
	"overlaysearch/internal/metrics"
	"overlaysearch/internal/search"
)

var (
	defaultConfigPath  = "config/harness/node.yaml"
	defaultHarnessPath = "config/harness/load.yaml"
)

// The harness joins the ring as an ordinary probe node (CDE has no
// remote-client surface to drive a lookup from outside the ring) and then
// runs a synthetic publish/search load against its own embedded Search
// Layer, recording latency outcomes to CSV.
func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the node-style configuration file used to join the ring")
	harnessConfigPath := flag.String("harness-config", defaultHarnessPath, "path to the load-generation configuration file")
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

	hcfg, err := harness.Load(*harnessConfigPath)
	if err != nil {
		log.Fatalf("failed to load harness configuration from %q: %v", *harnessConfigPath, err)
	}
	if err := hcfg.Validate(); err != nil {
		log.Fatalf("invalid harness configuration: %v", err)
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
	hcfg.LogConfig(lgr)

	dir := directory.New(cfg.Directory)
	space, err := domain.NewSpace(cfg.Chord.IDBits)
	if err != nil {
		log.Fatalf("failed to initialize identifier space: %v", err)
	}

	appAddr := net.JoinHostPort(cfg.Node.Host, strconv.Itoa(cfg.Chord.AppPort))
	self := &domain.Node{ID: space.NewIdFromString(cfg.Node.Host), Addr: appAddr}
	lgr = lgr.Named("harness").With(logger.FNode("self", self))

	searchLayer, err := search.New(space, self, cfg.Node.Bind, cfg.Search.SLPort, lgr.Named("search"))
	if err != nil {
		log.Fatalf("failed to initialize search layer: %v", err)
	}

	met := metrics.New()
	cdeEngine, err := cde.NewEngine(cfg.Chord, cfg.Node.Bind, self, dir, searchLayer, met, lgr.Named("cde"))
	if err != nil {
		log.Fatalf("failed to initialize cde engine: %v", err)
	}
	searchLayer.SetEngine(cdeEngine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineErr := make(chan error, 2)
	go func() { engineErr <- cdeEngine.Run(ctx) }()
	go func() { engineErr <- searchLayer.Run(ctx) }()

	if err := joinAsProbe(ctx, cfg, dir, cdeEngine, lgr); err != nil {
		lgr.Error("failed to join ring", logger.F("err", err))
		os.Exit(1)
	}

	var w harness.Writer = harness.NullWriter{}
	if hcfg.CSV.Enabled {
		csvWriter, err := harness.NewCSVWriter(hcfg.CSV.Path)
		if err != nil {
			lgr.Error("failed to open csv writer", logger.F("err", err))
			os.Exit(1)
		}
		defer csvWriter.Close()
		w = csvWriter
	}

	h := harness.New(hcfg, lgr, w, searchLayer)

	select {
	case err := <-engineErr:
		lgr.Error("engine terminated unexpectedly", logger.F("err", err))
	case err := <-runHarness(ctx, h):
		if err != nil {
			lgr.Warn("harness stopped", logger.F("err", err))
		}
	}

	lgr.Info("shutdown summary", logger.F("average_hop_count", met.AverageHopCount()))
}

func runHarness(ctx context.Context, h *harness.Harness) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	return done
}

// joinAsProbe mirrors cmd/node's bootstrap-to-directory-number resolution;
// a probe node is never the landmark.
func joinAsProbe(ctx context.Context, cfg *config.Config, dir *directory.Directory, cdeEngine *cde.Engine, lgr logger.Logger) error {
	var boot bootstrap.Bootstrap
	switch cfg.Bootstrap.Mode {
	case "static":
		boot = bootstrap.NewStaticBootstrap(cfg.Bootstrap.Peers)
	case "dns":
		boot = bootstrap.NewDynamicBootstrap(cfg.Bootstrap, lgr.Named("bootstrap"))
	default:
		return fmt.Errorf("harness requires bootstrap.mode static or dns, got %q", cfg.Bootstrap.Mode)
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
		return nil
	}
	return fmt.Errorf("no bootstrap peer resolved to a directory entry")
}
