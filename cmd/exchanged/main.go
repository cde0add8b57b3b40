package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"

	"matchbook/internal/bus"
	"matchbook/internal/exchange"
	"matchbook/internal/flowgen"
	"matchbook/internal/journal"
	"matchbook/internal/ledger"
	"matchbook/internal/obs"
	"matchbook/internal/ops"
	"matchbook/internal/risk"
	"matchbook/internal/schema"
	"matchbook/internal/store"
	"matchbook/pkg/conn"
)

type runtimeConfig struct {
	v atomic.Value
}

func newRuntimeConfig(loaded ops.Loaded) *runtimeConfig {
	var rc runtimeConfig
	rc.v.Store(loaded)
	return &rc
}

func (r *runtimeConfig) Load() ops.Loaded {
	return r.v.Load().(ops.Loaded)
}

func (r *runtimeConfig) Update(loaded ops.Loaded) {
	r.v.Store(loaded)
}

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	journalDir := flag.String("journal-dir", "testdata/journal", "Journal directory")
	orderCount := flag.Int("order-count", 1000, "Number of synthetic flow actions")
	orderInterval := flag.Duration("order-interval", 0, "Delay between flow actions")
	snapshotPath := flag.String("snapshot-path", "", "Position snapshot output (default: <journal-dir>/positions.json)")
	recoverEnabled := flag.Bool("recover", false, "Recover positions from snapshot + journal before starting")
	recoverNoChecksum := flag.Bool("recover-no-checksum", false, "Disable checksum validation for recovery")
	profileAddr := flag.String("profile-addr", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *profileAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "matchbook/exchanged",
			ServerAddress:   *profileAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	runtime := newRuntimeConfig(loaded)
	if *configPath != "" && *configReload > 0 {
		go watchConfig(ctx, *configPath, *configReload, runtime.Update)
	}

	if loaded.Journal.Dir == "" {
		loaded.Journal.Dir = *journalDir
	}
	snapshotOut := resolveSnapshotPath(loaded.Journal.Dir, firstNonEmpty(*snapshotPath, loaded.SnapshotPath))

	if err := run(ctx, runtime, loaded, runOptions{
		orderCount:        *orderCount,
		orderInterval:     *orderInterval,
		snapshotPath:      snapshotOut,
		recover:           *recoverEnabled,
		recoverNoChecksum: *recoverNoChecksum,
	}); err != nil {
		log.Fatalf("exchanged failed: %v", err)
	}
}

type runOptions struct {
	orderCount        int
	orderInterval     time.Duration
	snapshotPath      string
	recover           bool
	recoverNoChecksum bool
}

func run(ctx context.Context, runtime *runtimeConfig, loaded ops.Loaded, opts runOptions) error {
	var queues []*bus.Queue
	var wg sync.WaitGroup

	queueSize := loaded.QueueSize
	if queueSize <= 0 {
		queueSize = 4096
	}

	var writer *journal.Writer
	if loaded.JournalOn {
		w, err := journal.NewWriter(loaded.Journal)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		writer = w

		journalQueue := bus.NewQueue(queueSize)
		queues = append(queues, journalQueue)
		wg.Add(1)
		go func() {
			defer wg.Done()
			journalQueue.Run(ctx, func(e bus.Event) {
				if err := w.TryAppend(e.Header, e.Payload); err != nil {
					log.Printf("journal append failed: %v", err)
				}
			})
		}()
	}

	if loaded.Store.Enabled {
		client, err := conn.New(conn.Option{ConnString: loaded.Store.DSN})
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		st, err := store.New(client.DB())
		if err != nil {
			return err
		}
		storeQueue := bus.NewQueue(queueSize)
		queues = append(queues, storeQueue)
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Run(ctx, storeQueue)
		}()
	}

	metrics := obs.NewMetrics()
	fanout := bus.NewFanout(queues...)
	ex := exchange.New(loaded.Registry, exchange.Config{
		ShardCount:    loaded.Shards,
		SnapshotDepth: loaded.SnapshotDepth,
		Source:        loaded.Source,
		Risk:          loaded.Risk,
	}, fanout, metrics)

	if opts.recover {
		recovered, err := ledger.RecoverPositions(ctx, ledger.RecoverConfig{
			JournalDir:      loaded.Journal.Dir,
			SnapshotPath:    opts.snapshotPath,
			FilePrefix:      loaded.Journal.FilePrefix,
			DisableChecksum: opts.recoverNoChecksum,
		})
		if err != nil {
			return err
		}
		snap := recovered.Ledger.SnapshotWithMeta(recovered.LastSeq, recovered.LastEventTs)
		if err := ex.RestorePositions(snap); err != nil {
			return err
		}
		log.Printf("recovered positions=%d last_seq=%d", recovered.Ledger.Count(), recovered.LastSeq)
	}

	if loaded.Features.EnableFlow {
		if err := runFlow(ctx, ex, runtime, opts); err != nil {
			return err
		}
	}

	snap := ex.PositionSnapshot()
	ex.Close()
	wg.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			return err
		}
	}
	if opts.snapshotPath != "" {
		if err := ledger.WriteSnapshot(opts.snapshotPath, snap); err != nil {
			return err
		}
	}

	m := metrics.Snapshot()
	log.Printf("metrics: events=%v risk_reasons=%v rejected=%d cancel_misses=%d drops=%d submit=%+v publish=%+v",
		m.EventCounts, m.RiskReasonCounts, m.OrdersRejected, m.CancelMisses, m.QueueDrops,
		m.SubmitLatency, m.PublishLatency)
	return nil
}

// runFlow drives the exchange with seeded synthetic order flow, picking up
// risk limit changes between actions.
func runFlow(ctx context.Context, ex *exchange.Exchange, runtime *runtimeConfig, opts runOptions) error {
	loaded := runtime.Load()
	gen, err := flowgen.New(loaded.Registry, loaded.Flow)
	if err != nil {
		return err
	}
	riskVersion := loaded.Risk.Version

	for i := 0; i < opts.orderCount; i++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		loaded = runtime.Load()
		if loaded.Risk.Version != riskVersion {
			ex.ReloadRisk(loaded.Risk)
			riskVersion = loaded.Risk.Version
			log.Printf("risk limits reloaded: version=%d", riskVersion)
		}

		action := gen.Next()
		if action.Cancel {
			if err := ex.CancelOrder(action.Symbol, action.Order); err != nil {
				continue
			}
		} else {
			res, err := ex.Submit(action.Symbol, action.Intent)
			if err != nil {
				continue
			}
			if res.LeavesQty > 0 && !res.Status.Terminal() {
				gen.Track(action.Intent.SymbolID, res.OrderID)
			}
		}

		if opts.orderInterval > 0 && i < opts.orderCount-1 {
			time.Sleep(opts.orderInterval)
		}
	}
	return nil
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return defaultLoaded()
	}
	return ops.Load(path)
}

func defaultLoaded() (ops.Loaded, error) {
	reg := schema.NewRegistry()
	venueID, err := reg.AddVenue("SIM")
	if err != nil {
		return ops.Loaded{}, err
	}
	scale := schema.ScaleSpec{
		PriceScale:    8,
		QuantityScale: 8,
		NotionalScale: 8,
	}
	if _, err := reg.AddSymbol("TEST-USD", venueID, scale, schema.Price(1)); err != nil {
		return ops.Loaded{}, err
	}
	return ops.Loaded{
		Registry:      reg,
		Shards:        4,
		SnapshotDepth: 16,
		Source:        1,
		Risk: risk.Config{
			MaxOrderQty: schema.Quantity(1_000_000),
			MaxPosition: schema.Quantity(100_000_000),
		},
		Flow: flowgen.Config{
			Seed:         1,
			Accounts:     8,
			BasePrice:    100_000,
			PriceBandBps: 200,
			MinQty:       1,
			MaxQty:       1000,
			CancelRate:   0.2,
			MarketRate:   0.05,
			IOCRate:      0.1,
		},
		Features: ops.FeatureFlags{
			EnableFlow:    true,
			EnableJournal: false,
		},
	}, nil
}

func resolveSnapshotPath(dir string, path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(dir, "positions.json")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func watchConfig(ctx context.Context, path string, interval time.Duration, update func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				log.Printf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := ops.Load(path)
			if err != nil {
				log.Printf("config reload failed: %v", err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			log.Printf("config reloaded: %s", path)
		}
	}
}
