// Package feed turns external bar sources into sequenced events for the pair sequencers.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"pairs_go/internal/domain"
	"pairs_go/internal/event"
)

var (
	// ErrUnknownPair is returned when a bar names a pair with no registered inbox.
	ErrUnknownPair = errors.New("unknown pair")
	// ErrPairHalted is returned for bars of a pair whose sequencer has stopped.
	ErrPairHalted = errors.New("pair halted")
)

type route struct {
	inbox    chan<- event.Event
	seq      atomic.Uint64
	halted   chan struct{}
	haltOnce sync.Once
}

// Router stamps each pair's bars with a gap-free sequence and delivers them
// to that pair's sequencer inbox.
type Router struct {
	mu     sync.RWMutex
	routes map[string]*route
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]*route)}
}

// Register binds pairID to a sequencer inbox. Sequence numbers start at 1.
func (r *Router) Register(pairID string, inbox chan<- event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[pairID] = &route{inbox: inbox, halted: make(chan struct{})}
}

// Halt stops delivery to pairID. Blocked and later Route calls return ErrPairHalted.
func (r *Router) Halt(pairID string) {
	r.mu.RLock()
	rt, ok := r.routes[pairID]
	r.mu.RUnlock()
	if ok {
		rt.haltOnce.Do(func() { close(rt.halted) })
	}
}

// Routed returns how many events were sequenced for pairID.
func (r *Router) Routed(pairID string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rt, ok := r.routes[pairID]; ok {
		return rt.seq.Load()
	}
	return 0
}

// Close closes every inbox so the sequencers drain and return.
// It must only be called once no feed is routing anymore.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rt := range r.routes {
		close(rt.inbox)
		delete(r.routes, id)
	}
}

// Pairs returns the registered pair IDs.
func (r *Router) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.routes))
	for id := range r.routes {
		ids = append(ids, id)
	}
	return ids
}

// Route delivers one bar, blocking until the inbox accepts it or ctx ends.
// Bars for one pair must be routed from a single goroutine so that sequence
// order matches delivery order.
func (r *Router) Route(ctx context.Context, pairID string, bar domain.Bar) error {
	r.mu.RLock()
	rt, ok := r.routes[pairID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pairID)
	}

	ev := event.AcquireBarEvent()
	ev.Seq = rt.seq.Add(1)
	ev.Ts = event.NowMicros()
	ev.PairID = pairID
	ev.Bar = bar

	if err := rt.deliver(ctx, ev); err != nil {
		event.ReleaseBarEvent(ev)
		return fmt.Errorf("%w: %s", err, pairID)
	}
	return nil
}

// Reset flattens pairID's strategy and clears its history. The reset takes
// the next sequence number, so bars already routed are processed first.
func (r *Router) Reset(ctx context.Context, pairID, reason string) error {
	r.mu.RLock()
	rt, ok := r.routes[pairID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pairID)
	}

	ev := &event.ResetEvent{PairID: pairID, Reason: reason}
	ev.Seq = rt.seq.Add(1)
	ev.Ts = event.NowMicros()
	if err := rt.deliver(ctx, ev); err != nil {
		return fmt.Errorf("%w: %s", err, pairID)
	}
	return nil
}

func (rt *route) deliver(ctx context.Context, ev event.Event) error {
	select {
	case <-rt.halted:
		return ErrPairHalted
	default:
	}

	select {
	case rt.inbox <- ev:
		return nil
	case <-rt.halted:
		return ErrPairHalted
	case <-ctx.Done():
		return ctx.Err()
	}
}
