package service

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"pairs_go/internal/domain"
	"pairs_go/internal/strategy"
)

// PairStatus is the read model of one pair. Undefined numbers are null.
type PairStatus struct {
	PairID       string                 `json:"pair_id"`
	Active       bool                   `json:"active"`
	State        domain.PositionState   `json:"state"`
	LastBarTime  time.Time              `json:"last_bar_time"`
	PriceX       float64                `json:"price_x"`
	PriceY       float64                `json:"price_y"`
	Cointegrated bool                   `json:"cointegrated"`
	ADFStatistic *float64               `json:"adf_statistic"`
	PValue       *float64               `json:"p_value"`
	Beta         *float64               `json:"beta"`
	Intercept    *float64               `json:"intercept"`
	Spread       *float64               `json:"spread"`
	ZScore       *float64               `json:"zscore"`
	Signal       domain.Signal          `json:"signal"`
	Skipped      bool                   `json:"skipped"`
	Reason       string                 `json:"reason,omitempty"`
	Cycles       uint64                 `json:"cycles"`
	Intents      uint64                 `json:"intents"`
	LastIntent   *domain.PositionIntent `json:"last_intent,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// PairMonitor keeps the latest cycle outcome of every pair for external readers.
// Sequencers never read from it.
type PairMonitor struct {
	mu         sync.RWMutex
	pairs      map[string]*PairStatus
	updateChan chan strategy.CycleResult
	dropped    atomic.Uint64
}

// DefaultBufferSize absorbs replay bursts.
const DefaultBufferSize = 1000

// NewPairMonitor creates a new PairMonitor instance
func NewPairMonitor() *PairMonitor {
	return &PairMonitor{
		pairs:      make(map[string]*PairStatus),
		updateChan: make(chan strategy.CycleResult, DefaultBufferSize),
	}
}

// GetAll returns all pair statuses sorted by pair ID
func (m *PairMonitor) GetAll() []PairStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]PairStatus, 0, len(m.pairs))
	for _, st := range m.pairs {
		result = append(result, *st)
	}

	// Sort by pair ID for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].PairID < result[j].PairID
	})

	return result
}

// Get returns the status of one pair
func (m *PairMonitor) Get(pairID string) (PairStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.pairs[pairID]
	if !ok {
		return PairStatus{}, false
	}
	return *st, true
}

// Register adds a pair before its first cycle so readers can see it
func (m *PairMonitor) Register(pairID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pairs[pairID]; !ok {
		m.pairs[pairID] = &PairStatus{PairID: pairID, Active: true}
	}
}

// SetActive marks a pair as running or halted
func (m *PairMonitor) SetActive(pairID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.pairs[pairID]
	if !ok {
		st = &PairStatus{PairID: pairID}
		m.pairs[pairID] = st
	}
	st.Active = active
	st.UpdatedAt = time.Now()
}

// Submit queues a cycle result without blocking the caller.
// When the buffer is full a result carrying an intent is applied directly;
// any other result is dropped, counted, and Submit reports false.
func (m *PairMonitor) Submit(res strategy.CycleResult) bool {
	select {
	case m.updateChan <- res:
		return true
	default:
	}
	if res.Intent() != nil {
		m.Process(res)
		return true
	}
	m.dropped.Add(1)
	return false
}

// Dropped returns how many results Submit discarded.
func (m *PairMonitor) Dropped() uint64 {
	return m.dropped.Load()
}

// StartProcessor starts a background goroutine draining submitted results
func (m *PairMonitor) StartProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case res := <-m.updateChan:
				m.Process(res)
			}
		}
	}()
}

// Process applies one cycle result. It is thread-safe.
func (m *PairMonitor) Process(res strategy.CycleResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.pairs[res.PairID]
	if !ok {
		st = &PairStatus{PairID: res.PairID, Active: true}
		m.pairs[res.PairID] = st
	}

	st.Cycles++
	if in := res.Intent(); in != nil {
		st.Intents++
		if st.LastIntent == nil || !in.Timestamp.Before(st.LastIntent.Timestamp) {
			intent := *in
			st.LastIntent = &intent
		}
	}
	// A queued result older than one applied directly only counts
	if res.Bar.Time.Before(st.LastBarTime) {
		return
	}

	st.State = res.Decision.Next
	st.LastBarTime = res.Bar.Time
	st.PriceX = res.Bar.PriceX
	st.PriceY = res.Bar.PriceY
	st.Skipped = res.Skipped
	st.Reason = res.Reason
	st.Signal = res.Signal
	st.ZScore = finite(res.ZScore)
	st.Spread = finite(res.Spread)
	st.UpdatedAt = time.Now()

	if res.Skipped {
		return
	}

	st.Cointegrated = res.Coint.IsCointegrated
	st.ADFStatistic, st.PValue = nil, nil
	if res.Coint.Nobs > 0 {
		st.ADFStatistic = finite(res.Coint.Statistic)
		st.PValue = finite(res.Coint.PValue)
	}
	st.Beta, st.Intercept = nil, nil
	if res.Hedge.WindowUsed > 0 {
		st.Beta = finite(res.Hedge.Beta)
		st.Intercept = finite(res.Hedge.Intercept)
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
