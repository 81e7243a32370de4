package infra

import (
	"bytes"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairs_go/internal/domain"
	"pairs_go/internal/position"
	"pairs_go/internal/strategy"
)

func TestRegistry_ExportsSnapshot(t *testing.T) {
	m := &Metrics{}
	m.RecordCycle(2000, false)
	m.RecordCycle(4000, true)
	m.RecordIntent()
	m.RecordMonitorDrop()

	reg, _ := NewRegistry(m)
	body := scrape(t, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	for _, want := range []string{
		"pairs_cycles_total 2",
		"pairs_cycles_skipped_total 1",
		"pairs_intents_total 1",
		"pairs_monitor_dropped_total 1",
		"pairs_cycle_latency_avg_seconds 3e-06",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in exposition", want)
		}
	}
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestPairCollectors_Observe(t *testing.T) {
	reg, pc := NewRegistry(&Metrics{})
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	res := strategy.CycleResult{
		PairID: "AB",
		Coint:  domain.CointegrationResult{IsCointegrated: true},
		Hedge:  domain.HedgeRatio{Beta: 1.5, WindowUsed: 60},
		ZScore: 2.2,
		Decision: position.Decision{
			Prev:   domain.Flat,
			Next:   domain.ShortSpread,
			Intent: &domain.PositionIntent{Direction: domain.ShortSpread},
		},
	}
	pc.Observe(res)

	body := scrape(t, h)
	for _, want := range []string{
		`pairs_pair_zscore{pair="AB"} 2.2`,
		`pairs_pair_hedge_ratio{pair="AB"} 1.5`,
		`pairs_pair_cointegrated{pair="AB"} 1`,
		`pairs_pair_intents_total{direction="SHORT_SPREAD",pair="AB"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in exposition", want)
		}
	}

	// NaN z keeps the last defined value
	res.ZScore = math.NaN()
	res.Decision = position.Decision{}
	pc.Observe(res)
	if body := scrape(t, h); !strings.Contains(body, `pairs_pair_zscore{pair="AB"} 2.2`) {
		t.Error("NaN z-score overwrote the gauge")
	}
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe_LogsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	logs := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(logs, nil)))
	defer slog.SetDefault(prev)

	reg, _ := NewRegistry(&Metrics{})
	srv := Serve(ln.Addr().String(), reg, nil)
	defer srv.Close()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(logs.String(), "HTTP server failed") {
		if time.Now().After(deadline) {
			t.Fatalf("Bind failure was not logged: %s", logs.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
