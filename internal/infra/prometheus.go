package infra

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairs_go/internal/strategy"
)

const namespace = "pairs"

var (
	cyclesDesc      = prometheus.NewDesc(namespace+"_cycles_total", "Evaluation cycles processed", nil, nil)
	skippedDesc     = prometheus.NewDesc(namespace+"_cycles_skipped_total", "Cycles skipped for insufficient data", nil, nil)
	intentsDesc     = prometheus.NewDesc(namespace+"_intents_total", "Position intents emitted", nil, nil)
	errorsDesc      = prometheus.NewDesc(namespace+"_errors_total", "Errors recorded by sequencers and sinks", nil, nil)
	droppedDesc     = prometheus.NewDesc(namespace+"_monitor_dropped_total", "Cycle results the read model dropped", nil, nil)
	latencyDesc     = prometheus.NewDesc(namespace+"_cycle_latency_avg_seconds", "Average evaluation cycle latency", nil, nil)
	connectionsDesc = prometheus.NewDesc(namespace+"_feed_connections", "Active feed connections", nil, nil)
	activePairsDesc = prometheus.NewDesc(namespace+"_active_pairs", "Running pair sequencers", nil, nil)
)

// metricsCollector exports a Metrics snapshot on every scrape.
type metricsCollector struct {
	m *Metrics
}

func (c metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cyclesDesc
	ch <- skippedDesc
	ch <- intentsDesc
	ch <- errorsDesc
	ch <- droppedDesc
	ch <- latencyDesc
	ch <- connectionsDesc
	ch <- activePairsDesc
}

func (c metricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	ch <- prometheus.MustNewConstMetric(cyclesDesc, prometheus.CounterValue, float64(s.CyclesProcessed))
	ch <- prometheus.MustNewConstMetric(skippedDesc, prometheus.CounterValue, float64(s.CyclesSkipped))
	ch <- prometheus.MustNewConstMetric(intentsDesc, prometheus.CounterValue, float64(s.IntentsEmitted))
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(s.ErrorsTotal))
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(s.MonitorDropped))
	ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, time.Duration(s.AvgLatencyNs).Seconds())
	ch <- prometheus.MustNewConstMetric(connectionsDesc, prometheus.GaugeValue, float64(s.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(activePairsDesc, prometheus.GaugeValue, float64(s.ActivePairs))
}

// PairCollectors are the per-pair series updated from cycle results.
type PairCollectors struct {
	Intents      *prometheus.CounterVec
	ZScore       *prometheus.GaugeVec
	HedgeRatio   *prometheus.GaugeVec
	Cointegrated *prometheus.GaugeVec
}

// NewRegistry builds a registry exporting m, the per-pair collectors and the Go runtime.
func NewRegistry(m *Metrics) (*prometheus.Registry, *PairCollectors) {
	pc := &PairCollectors{
		Intents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "pair_intents_total", Help: "Intents per pair and direction"},
			[]string{"pair", "direction"},
		),
		ZScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "pair_zscore", Help: "Latest spread z-score"},
			[]string{"pair"},
		),
		HedgeRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "pair_hedge_ratio", Help: "Latest hedge ratio"},
			[]string{"pair"},
		),
		Cointegrated: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "pair_cointegrated", Help: "1 when the last test rejected the unit root"},
			[]string{"pair"},
		),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metricsCollector{m: m},
		pc.Intents, pc.ZScore, pc.HedgeRatio, pc.Cointegrated,
		collectors.NewGoCollector(),
	)
	return reg, pc
}

// Observe updates the per-pair series. Undefined values leave the gauges untouched.
func (p *PairCollectors) Observe(res strategy.CycleResult) {
	if res.Skipped {
		return
	}
	if !math.IsNaN(res.ZScore) {
		p.ZScore.WithLabelValues(res.PairID).Set(res.ZScore)
	}
	if res.Hedge.WindowUsed > 0 {
		p.HedgeRatio.WithLabelValues(res.PairID).Set(res.Hedge.Beta)
	}
	cointegrated := 0.0
	if res.Coint.IsCointegrated {
		cointegrated = 1
	}
	p.Cointegrated.WithLabelValues(res.PairID).Set(cointegrated)

	if in := res.Intent(); in != nil {
		p.Intents.WithLabelValues(res.PairID, in.Direction.String()).Inc()
	}
}

// Serve starts the HTTP endpoint with /metrics plus any extra routes.
func Serve(addr string, reg *prometheus.Registry, routes map[string]http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	for pattern, h := range routes {
		mux.Handle(pattern, h)
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	return srv
}
