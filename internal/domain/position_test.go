package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPosition_VerifyInvariant(t *testing.T) {
	t.Run("flat without entry", func(t *testing.T) {
		p := &Position{State: Flat}
		p.VerifyInvariant()
	})

	t.Run("open with entry", func(t *testing.T) {
		p := &Position{State: LongSpread, Entry: &EntryMetadata{Time: time.Now(), ZScore: -2.1}}
		p.VerifyInvariant()
	})

	t.Run("open without entry panics", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic for open position without entry metadata")
			}
		}()
		p := &Position{State: ShortSpread}
		p.VerifyInvariant()
	})

	t.Run("flat with entry panics", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic for flat position with entry metadata")
			}
		}()
		p := &Position{State: Flat, Entry: &EntryMetadata{}}
		p.VerifyInvariant()
	})
}

func TestSignalAndState_Strings(t *testing.T) {
	if SignalEnterShortSpread.String() != "ENTER_SHORT_SPREAD" {
		t.Errorf("got %s", SignalEnterShortSpread)
	}
	if !SignalEnterLongSpread.IsEntry() || SignalExit.IsEntry() {
		t.Error("IsEntry misclassifies signals")
	}

	b, err := json.Marshal(Position{State: LongSpread})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(b), `"LONG_SPREAD"`) {
		t.Errorf("Expected state name in JSON, got %s", b)
	}
}

func TestSignal_TextRoundTrip(t *testing.T) {
	for _, s := range []Signal{SignalHold, SignalEnterLongSpread, SignalEnterShortSpread, SignalExit} {
		b, err := json.Marshal(struct{ S Signal }{s})
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		var got struct{ S Signal }
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", b, err)
		}
		if got.S != s {
			t.Errorf("got %s, want %s", got.S, s)
		}
	}

	var s Signal
	if err := s.UnmarshalText([]byte("BUY")); err == nil {
		t.Error("Expected an error for an unknown signal")
	}
}

func TestPosition_IsFlatOnValue(t *testing.T) {
	pos := func() Position { return Position{State: ShortSpread} }
	if pos().IsFlat() {
		t.Error("SHORT_SPREAD must not be flat")
	}
	if !(Position{}).IsFlat() {
		t.Error("Zero position must be flat")
	}
}
