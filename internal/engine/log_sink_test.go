package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"pairs_go/internal/domain"
)

func TestLogSink_Emit(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	err := sink.Emit(context.Background(), domain.PositionIntent{
		ID:              "id-1",
		PairID:          "AB",
		Direction:       domain.LongSpread,
		TargetExposureX: decimal.NewFromInt(1000),
		TargetExposureY: decimal.NewFromInt(-1000),
		Reason:          "ENTER_LONG",
		ZScore:          -2.3,
	})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if rec["pair"] != "AB" || rec["direction"] != "LONG_SPREAD" || rec["exposure_y"] != "-1000" {
		t.Errorf("Unexpected log record: %v", rec)
	}
}
