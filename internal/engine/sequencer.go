package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pairs_go/internal/domain"
	"pairs_go/internal/event"
	"pairs_go/internal/strategy"
)

// ErrHalted is returned by Run when the sequencer stopped on a fatal condition.
var ErrHalted = errors.New("sequencer halted")

// Recorder receives hot-path measurements. infra.Metrics satisfies it.
type Recorder interface {
	RecordCycle(latencyNs int64, skipped bool)
	RecordIntent()
	RecordError()
}

// Options configures a Sequencer.
type Options struct {
	InboxSize int
	Sinks     []domain.IntentSink
	Recorder  Recorder
	// Boundary: used to notify the read model of every finished cycle
	OnUpdate func(strategy.CycleResult)
	DumpDir  string // Directory for post-mortem dumps; "" uses the working directory
}

// State is the externally readable view of a Sequencer.
type State struct {
	PairID    string          `json:"pair_id"`
	NextSeq   uint64          `json:"next_seq"`
	Processed uint64          `json:"processed"`
	Position  domain.Position `json:"position"`
	LastBar   domain.Bar      `json:"last_bar"`
}

// Sequencer is the single-threaded event processor of one pair.
type Sequencer struct {
	inbox    chan event.Event
	nextSeq  uint64
	strategy strategy.Strategy
	opts     Options

	state State
	mu    sync.RWMutex // Used only for external reads (e.g. HTTP)
}

// NewSequencer creates a new sequencer instance for strat.
func NewSequencer(strat strategy.Strategy, opts Options) *Sequencer {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}
	return &Sequencer{
		inbox:    make(chan event.Event, opts.InboxSize),
		nextSeq:  1,
		strategy: strat,
		opts:     opts,
		state:    State{PairID: strat.PairID(), NextSeq: 1},
	}
}

// Inbox returns the event channel. Feeds send events here.
// Closing it makes Run return after the buffered events are processed.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// PairID returns the pair this sequencer owns.
func (s *Sequencer) PairID() string {
	return s.strategy.PairID()
}

// Run starts the main event loop. This MUST be run in a single goroutine.
// It returns nil on context cancellation or a closed inbox and an ErrHalted-wrapped error when
// a sequence gap or a misaligned series stops the pair.
func (s *Sequencer) Run(ctx context.Context) (err error) {
	slog.Info("Sequencer started", slog.String("pair", s.PairID()))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.String("pair", s.PairID()), slog.Any("panic", r))
			s.DumpState(s.dumpPath())
			err = fmt.Errorf("%w: %s: %v", ErrHalted, s.PairID(), r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.String("pair", s.PairID()))
			return nil
		case ev, ok := <-s.inbox:
			if !ok {
				slog.Info("Inbox closed, sequencer done", slog.String("pair", s.PairID()))
				return nil
			}
			if err := s.processEvent(ctx, ev); err != nil {
				slog.Error("Sequencer halted",
					slog.String("pair", s.PairID()),
					slog.Any("error", err))
				s.DumpState(s.dumpPath())
				return fmt.Errorf("%w: %w", ErrHalted, err)
			}
		}
	}
}

func (s *Sequencer) processEvent(ctx context.Context, ev event.Event) error {
	// 1. Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	// 2. Logic Dispatch
	var err error
	switch e := ev.(type) {
	case *event.BarEvent:
		err = s.handleBar(ctx, e)
		event.ReleaseBarEvent(e)
	case *event.ResetEvent:
		s.handleReset(e)
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
	if err != nil {
		return err
	}

	// 3. Increment Sequence
	s.nextSeq++
	s.mu.Lock()
	s.state.NextSeq = s.nextSeq
	s.mu.Unlock()
	return nil
}

func (s *Sequencer) handleBar(ctx context.Context, e *event.BarEvent) error {
	if e.PairID != "" && e.PairID != s.PairID() {
		slog.Warn("Bar routed to the wrong pair",
			slog.String("pair", s.PairID()),
			slog.String("got", e.PairID))
		return nil
	}

	start := time.Now()
	res, err := s.strategy.OnBar(e.Bar)
	if err != nil {
		if s.opts.Recorder != nil {
			s.opts.Recorder.RecordError()
		}
		return err
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordCycle(time.Since(start).Nanoseconds(), res.Skipped)
	}

	if intent := res.Intent(); intent != nil {
		s.emit(ctx, *intent)
	}

	s.mu.Lock()
	s.state.Processed++
	s.state.Position = s.strategy.Position()
	s.state.LastBar = e.Bar
	s.mu.Unlock()

	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(res)
	}
	return nil
}

// emit forwards an intent to every sink. Sink failures are logged and counted;
// they never stop the pair.
func (s *Sequencer) emit(ctx context.Context, intent domain.PositionIntent) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordIntent()
	}
	for _, sink := range s.opts.Sinks {
		if err := sink.Emit(ctx, intent); err != nil {
			slog.Error("Failed to emit intent",
				slog.String("pair", intent.PairID),
				slog.String("intent", intent.ID),
				slog.Any("error", err))
			if s.opts.Recorder != nil {
				s.opts.Recorder.RecordError()
			}
		}
	}
}

func (s *Sequencer) handleReset(e *event.ResetEvent) {
	slog.Warn("Resetting pair", slog.String("pair", s.PairID()), slog.String("reason", e.Reason))
	s.strategy.Reset()

	s.mu.Lock()
	s.state.Position = s.strategy.Position()
	s.mu.Unlock()
}

// Snapshot returns a copy of the sequencer state (external read).
func (s *Sequencer) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	if st.Position.Entry != nil {
		entry := *st.Position.Entry
		st.Position.Entry = &entry
	}
	return st
}

func (s *Sequencer) dumpPath() string {
	name := fmt.Sprintf("panic_dump_%s.json", s.PairID())
	if s.opts.DumpDir == "" {
		return name
	}
	return filepath.Join(s.opts.DumpDir, name)
}

// DumpState writes the sequencer state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	b, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
