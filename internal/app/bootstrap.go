package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pairs_go/internal/domain"
	"pairs_go/internal/engine"
	"pairs_go/internal/infra"
	"pairs_go/internal/infra/bus"
	"pairs_go/internal/infra/feed"
	"pairs_go/internal/infra/storage"
	"pairs_go/internal/service"
	"pairs_go/internal/strategy"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string
	Config     *infra.Config

	Storage    *storage.Storage // nil when storage is disabled
	Publisher  *bus.Publisher   // nil when NATS is disabled
	Monitor    *service.PairMonitor
	Metrics    *infra.Metrics
	Registry   *prometheus.Registry
	Collectors *infra.PairCollectors

	Router     *feed.Router
	Sequencers []*engine.Sequencer
	Feed       domain.BarFeed

	server *http.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize loads the configuration and wires every component. Nothing runs yet.
func (b *Bootstrap) Initialize() error {
	slog.Info("Bootstrapping pairs engine...", slog.String("config", b.ConfigPath))

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))

	// 3. Initialize Storage (DB)
	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(cfg.Storage.Path)
		if err != nil {
			return err
		}
		b.Storage = store
		if prev, err := store.LoadConfigMap(); err != nil {
			slog.Warn("Failed to load stored settings", slog.Any("error", err))
		} else if v, ok := prev["app.version"]; ok && v != cfg.App.Version {
			slog.Info("Database written by another version",
				slog.String("stored", v),
				slog.String("running", cfg.App.Version))
		}
		if err := store.SaveConfig("app.version", cfg.App.Version); err != nil {
			slog.Warn("Failed to save app version", slog.Any("error", err))
		}
		slog.Info("Database initialized", slog.String("path", cfg.Storage.Path))
	}

	// 4. Intent bus
	if cfg.NATS.Enabled {
		pub, err := bus.NewPublisher(cfg.NATS.URL, cfg.NATS.Token, cfg.NATS.SubjectPrefix)
		if err != nil {
			b.Close()
			return err
		}
		b.Publisher = pub
	}

	// 5. Observability and read model
	b.Metrics = infra.GlobalMetrics
	b.Registry, b.Collectors = infra.NewRegistry(b.Metrics)
	b.Monitor = service.NewPairMonitor()

	// 6. One strategy and sequencer per pair
	b.Router = feed.NewRouter()
	sinks := b.sinks()
	for _, pc := range cfg.Pairs {
		seq, err := b.buildPair(pc, sinks)
		if err != nil {
			b.Close()
			return fmt.Errorf("pair %s: %w", pc.ID, err)
		}
		b.Sequencers = append(b.Sequencers, seq)
	}
	b.Metrics.SetActivePairs(int32(len(b.Sequencers)))

	// 7. Bar feed
	switch cfg.Feed.Mode {
	case infra.FeedWS:
		maxDelay := time.Duration(cfg.Feed.ReconnectMaxSec) * time.Second
		b.Feed = feed.NewWSFeed(cfg.Feed.WSURL, b.Router, b.Metrics, maxDelay)
	default:
		sources := make(map[string]feed.Source, len(cfg.Pairs))
		for _, pc := range cfg.Pairs {
			sources[pc.ID] = pairSource(pc)
		}
		delay := time.Duration(cfg.Feed.ReplayDelayMS) * time.Millisecond
		b.Feed = feed.NewCSVFeed(b.Router, sources, cfg.Feed.CSVDir, delay)
	}

	slog.Info("Bootstrap complete",
		slog.Int("pairs", len(b.Sequencers)),
		slog.String("feed", cfg.Feed.Mode),
		slog.Bool("storage", b.Storage != nil),
		slog.Bool("nats", b.Publisher != nil))
	return nil
}

func pairSource(pc infra.PairConfig) feed.Source {
	return feed.Source{File: pc.File, FileX: pc.FileX, FileY: pc.FileY}
}

func (b *Bootstrap) sinks() []domain.IntentSink {
	sinks := []domain.IntentSink{engine.LogSink{}}
	if b.Storage != nil {
		sinks = append(sinks, b.Storage)
	}
	if b.Publisher != nil {
		sinks = append(sinks, b.Publisher)
	}
	return sinks
}

func (b *Bootstrap) buildPair(pc infra.PairConfig, sinks []domain.IntentSink) (*engine.Sequencer, error) {
	scfg, err := pc.StrategyConfig()
	if err != nil {
		return nil, err
	}
	strat, err := strategy.NewPairsStrategy(scfg)
	if err != nil {
		return nil, err
	}

	if b.Storage != nil {
		info := &domain.PairInfo{PairID: pc.ID, SymbolX: pc.SymbolX, SymbolY: pc.SymbolY, IsActive: true}
		if err := b.Storage.UpsertPair(info); err != nil {
			return nil, err
		}
		if last, err := b.Storage.LatestIntent(pc.ID); err == nil && last != nil {
			// Positions are not restored; the journal only tells the operator where the last run ended
			slog.Info("Last journaled intent",
				slog.String("pair", pc.ID),
				slog.String("direction", last.Direction.String()),
				slog.Time("ts", last.Timestamp))
		}
	}

	seq := engine.NewSequencer(strat, engine.Options{
		InboxSize: b.Config.Engine.InboxSize,
		Sinks:     sinks,
		Recorder:  b.Metrics,
		OnUpdate: func(res strategy.CycleResult) {
			b.Collectors.Observe(res)
			if !b.Monitor.Submit(res) {
				b.Metrics.RecordMonitorDrop()
				slog.Debug("Monitor buffer full, dropping update", slog.String("pair", res.PairID))
			}
		},
		DumpDir: b.Config.Engine.DumpDir,
	})
	b.Router.Register(pc.ID, seq.Inbox())
	b.Monitor.Register(pc.ID)
	return seq, nil
}

// Run starts the sequencers, the HTTP endpoint and the feed, then blocks.
// A CSV replay returns once every bar was processed; a websocket feed runs
// until ctx is cancelled. Halted pairs are reported in the returned error.
func (b *Bootstrap) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.Monitor.StartProcessor(ctx)

	if b.Config.HTTP.Enabled {
		api := &API{Monitor: b.Monitor, Store: b.Storage, Router: b.Router, Feed: b.Feed}
		b.server = infra.Serve(b.Config.HTTP.Addr, b.Registry, api.Routes())
		slog.Info("HTTP server started", slog.String("addr", b.Config.HTTP.Addr))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(b.Sequencers))
	for i, seq := range b.Sequencers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := seq.Run(ctx); err != nil {
				errs[i] = err
				b.haltPair(seq.PairID(), err)
			}
		}()
	}

	if err := b.Feed.Connect(ctx); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("feed connect: %w", err)
	}
	slog.InfoContext(ctx, "Pairs engine fully operational", slog.Int("pairs", len(b.Sequencers)))

	if replay, ok := b.Feed.(*feed.CSVFeed); ok {
		select {
		case <-replay.Done():
			if err := replay.Err(); err != nil {
				slog.Error("Replay finished with errors", slog.Any("error", err))
			}
			// Let the sequencers drain what is buffered and return
			b.Router.Close()
		case <-ctx.Done():
		}
	}

	wg.Wait()
	b.Feed.Disconnect()
	b.logSummary()
	return errors.Join(errs...)
}

func (b *Bootstrap) haltPair(pairID string, err error) {
	slog.Error("Pair halted", slog.String("pair", pairID), slog.Any("error", err))
	b.Router.Halt(pairID)
	b.Monitor.SetActive(pairID, false)
	b.Metrics.AddActivePairs(-1)
	if b.Storage != nil {
		if err := b.Storage.SetPairActive(pairID, false); err != nil {
			slog.Warn("Failed to deactivate pair", slog.String("pair", pairID), slog.Any("error", err))
		}
	}
}

func (b *Bootstrap) logSummary() {
	for _, seq := range b.Sequencers {
		st := seq.Snapshot()
		slog.Info("Pair summary",
			slog.String("pair", st.PairID),
			slog.Uint64("processed", st.Processed),
			slog.Uint64("routed", b.Router.Routed(st.PairID)),
			slog.String("position", st.Position.State.String()))
	}
	snap := b.Metrics.Snapshot()
	slog.Info("Engine metrics",
		slog.Uint64("cycles", snap.CyclesProcessed),
		slog.Uint64("skipped", snap.CyclesSkipped),
		slog.Uint64("intents", snap.IntentsEmitted),
		slog.Uint64("errors", snap.ErrorsTotal),
		slog.Uint64("monitor_dropped", snap.MonitorDropped))
}

// Close releases the HTTP server, the bus and the database.
func (b *Bootstrap) Close() {
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.server.Shutdown(ctx); err != nil {
			slog.Warn("HTTP shutdown failed", slog.Any("error", err))
		}
	}
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			slog.Warn("NATS flush failed", slog.Any("error", err))
		}
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Database close failed", slog.Any("error", err))
		}
	}
}
