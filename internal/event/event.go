package event

import (
	"time"

	"pairs_go/internal/domain"
)

// Type identifies the kind of event flowing through the Sequencer.
type Type int

const (
	TypeBar Type = iota + 1
	TypeReset
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case TypeBar:
		return "BAR"
	case TypeReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// Event is anything the Sequencer consumes. Seq must be gap-free per Sequencer.
type Event interface {
	GetSeq() uint64
	GetType() Type
	GetTs() int64
}

// BaseEvent carries the ordering fields shared by all events.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"` // Unix microseconds of ingestion
}

func (e *BaseEvent) GetSeq() uint64 { return e.Seq }
func (e *BaseEvent) GetTs() int64   { return e.Ts }

// BarEvent delivers one aligned bar of a pair.
type BarEvent struct {
	BaseEvent
	PairID string     `json:"pair_id"`
	Bar    domain.Bar `json:"bar"`
}

func (e *BarEvent) GetType() Type { return TypeBar }

// ResetEvent flattens the pair's strategy and drops its history.
type ResetEvent struct {
	BaseEvent
	PairID string `json:"pair_id"`
	Reason string `json:"reason"`
}

func (e *ResetEvent) GetType() Type { return TypeReset }

// NowMicros returns the ingestion timestamp used in BaseEvent.Ts.
func NowMicros() int64 {
	return time.Now().UnixMicro()
}
