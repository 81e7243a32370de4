package app

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"pairs_go/internal/infra"
	"pairs_go/internal/infra/feed"
	"pairs_go/internal/strategy"
)

// RunAnalysis evaluates a configured pair's whole CSV history offline and
// writes one row per bar: timestamp,beta,spread,zscore. Undefined values are NaN.
func RunAnalysis(w io.Writer, cfg *infra.Config, pairID string) error {
	var pc *infra.PairConfig
	for i := range cfg.Pairs {
		if cfg.Pairs[i].ID == pairID {
			pc = &cfg.Pairs[i]
			break
		}
	}
	if pc == nil {
		return fmt.Errorf("%w: %s", feed.ErrUnknownPair, pairID)
	}

	scfg, err := pc.StrategyConfig()
	if err != nil {
		return err
	}
	series, err := pairSource(*pc).Load(pairID, cfg.Feed.CSVDir)
	if err != nil {
		return err
	}

	a, err := strategy.Analyze(series, scfg)
	if err != nil {
		return err
	}
	slog.Info("Analysis complete",
		slog.String("pair", pairID),
		slog.Int("bars", series.Len()),
		slog.Bool("cointegrated", a.Coint.IsCointegrated),
		slog.Float64("p_value", a.Coint.PValue),
		slog.Float64("static_beta", a.Static.Beta))

	out := csv.NewWriter(w)
	if err := out.Write([]string{"timestamp", "beta", "spread", "zscore"}); err != nil {
		return err
	}
	for i, ts := range a.Times {
		row := []string{ts.Format(time.RFC3339), formatFloat(a.Betas[i]), formatFloat(a.Spread[i]), formatFloat(a.ZScores[i])}
		if err := out.Write(row); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
