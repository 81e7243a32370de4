package event

import (
	"sync"

	"pairs_go/internal/domain"
)

// barPool provides sync.Pool for high-frequency bar event allocation.
// Use this to reduce GC pressure in the hotpath.
//
// Usage:
//
//	ev := AcquireBarEvent()
//	ev.PairID = "KO-PEP"
//	// ... send to the Sequencer, which releases it after processing ...
var barPool = sync.Pool{
	New: func() interface{} {
		return &BarEvent{}
	},
}

// AcquireBarEvent gets a BarEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireBarEvent() *BarEvent {
	return barPool.Get().(*BarEvent)
}

// ReleaseBarEvent returns a BarEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleaseBarEvent(ev *BarEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0
	ev.PairID = ""
	ev.Bar = domain.Bar{}

	barPool.Put(ev)
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	evs := make([]*BarEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireBarEvent())
	}
	for _, ev := range evs {
		ReleaseBarEvent(ev)
	}
}
