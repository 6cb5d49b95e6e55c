// Package harness generates synthetic publish/search load against one
// node's already-running Search Layer and records latency outcomes,
// adapted from the teacher's client/tester load generator: a ticked wave
// of parallel workers each performing one random operation, translated
// from remote gRPC lookups against a discovered node into local calls
// against the in-process search.Layer (this design has no client-facing
// RPC surface, so the harness runs embedded rather than as a standalone
// client binary).
package harness

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"overlaysearch/internal/logger"
	"overlaysearch/internal/search"
)

// Harness drives a search.Layer with synthetic load for a fixed duration.
type Harness struct {
	cfg     *Config
	lgr     logger.Logger
	writer  Writer
	search  *search.Layer
	started time.Time
}

// New builds a Harness.
func New(cfg *Config, lgr logger.Logger, writer Writer, searchLayer *search.Layer) *Harness {
	return &Harness{cfg: cfg, lgr: lgr, writer: writer, search: searchLayer}
}

// Run generates load for cfg.Simulation.Duration or until ctx is canceled.
func (h *Harness) Run(ctx context.Context) error {
	h.lgr.Info("harness started", logger.F("duration", h.cfg.Simulation.Duration))
	h.started = time.Now()
	endTime := h.started.Add(h.cfg.Simulation.Duration)
	interval := time.Duration(float64(time.Second) / h.cfg.Query.Rate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if time.Now().After(endTime) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.runWave(ctx)
		}
	}

	h.lgr.Info("harness finished")
	return nil
}

// runWave spawns a random number of parallel workers, each performing one
// random publish or search operation.
func (h *Harness) runWave(ctx context.Context) {
	p := randomInt(h.cfg.Query.Parallelism.MinWorkers, h.cfg.Query.Parallelism.MaxWorkers)
	h.lgr.Debug("starting wave", logger.F("parallel", p))

	var wg sync.WaitGroup
	wg.Add(p)
	for i := 0; i < p; i++ {
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
			default:
				h.doOperation(ctx)
			}
		}()
	}
	wg.Wait()
}

func (h *Harness) doOperation(ctx context.Context) {
	term := h.cfg.Corpus[randomInt(0, len(h.cfg.Corpus)-1)]
	opCtx, cancel := context.WithTimeout(ctx, h.cfg.Query.Timeout)
	defer cancel()

	start := time.Now()
	var operation, result string

	if randomFloat() < h.cfg.Query.PublishRatio {
		operation = "publish"
		docID, err := randomDocID()
		if err != nil {
			h.lgr.Warn("failed to generate doc id", logger.F("err", err))
			return
		}
		h.search.Publish(opCtx, term, docID)
		result = classify(opCtx, nil)
	} else {
		operation = "search"
		_, err := h.search.Search(opCtx, []string{term})
		result = classify(opCtx, err)
	}
	delay := time.Since(start)

	h.lgr.Info("operation result",
		logger.F("operation", operation),
		logger.F("term", term),
		logger.F("result", result),
		logger.F("delay_ms", delay.Milliseconds()),
	)

	if err := h.writer.WriteRow(operation, term, result, delay); err != nil {
		h.lgr.Warn("failed to write csv row", logger.F("err", err))
	}
}

func classify(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "TIMEOUT"
	}
	if err != nil {
		return fmt.Sprintf("ERROR_%v", err)
	}
	return "SUCCESS"
}

func randomInt(min, max int) int {
	if min >= max {
		return min
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return min
	}
	return min + int(n.Int64())
}

func randomFloat() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0
	}
	return float64(n.Int64()) / float64(int64(1)<<53)
}

func randomDocID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
