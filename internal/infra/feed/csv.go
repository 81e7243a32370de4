package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pairs_go/internal/domain"
)

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

// parseTimestamp accepts RFC3339, "2006-01-02[ 15:04:05]" or unix seconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func parsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return v, nil
}

// readRows reads a CSV with an optional header and at least cols columns.
// fn is called for every data row with its 1-based line number.
func readRows(r io.Reader, cols int, fn func(line int, rec []string) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	line := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}
		if len(rec) < cols {
			return fmt.Errorf("line %d: expected %d columns, got %d", line, cols, len(rec))
		}
		// Header row
		if line == 1 {
			if _, err := parseTimestamp(rec[0]); err != nil {
				continue
			}
		}
		if err := fn(line, rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

// ReadBars parses timestamp,price_x,price_y rows. Bars must be strictly increasing in time.
func ReadBars(r io.Reader) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := readRows(r, 3, func(line int, rec []string) error {
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return err
		}
		px, err := parsePrice(rec[1])
		if err != nil {
			return err
		}
		py, err := parsePrice(rec[2])
		if err != nil {
			return err
		}
		if n := len(bars); n > 0 && !ts.After(bars[n-1].Time) {
			return &domain.MisalignedSeriesError{Index: n, TimeX: bars[n-1].Time, TimeY: ts, Reason: "timestamps not increasing"}
		}
		bars = append(bars, domain.Bar{Time: ts, PriceX: px, PriceY: py})
		return nil
	})
	return bars, err
}

// ReadLeg parses timestamp,price rows of a single instrument.
func ReadLeg(r io.Reader) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	err := readRows(r, 2, func(line int, rec []string) error {
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return err
		}
		p, err := parsePrice(rec[1])
		if err != nil {
			return err
		}
		points = append(points, domain.PricePoint{Time: ts, Price: p})
		return nil
	})
	return points, err
}

// LoadLegs reads two single-leg files and aligns them into a PairSeries.
// Legs that disagree on timestamps fail with a MisalignedSeriesError.
func LoadLegs(pairID, pathX, pathY string) (domain.PairSeries, error) {
	x, err := readLegFile(pathX)
	if err != nil {
		return domain.PairSeries{}, err
	}
	y, err := readLegFile(pathY)
	if err != nil {
		return domain.PairSeries{}, err
	}
	return domain.NewPairSeries(pairID, x, y)
}

func readLegFile(path string) ([]domain.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	points, err := ReadLeg(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// LoadBars reads a timestamp,price_x,price_y file.
func LoadBars(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadBars(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// LoadSeries reads a timestamp,price_x,price_y file as an aligned PairSeries.
func LoadSeries(pairID, path string) (domain.PairSeries, error) {
	bars, err := LoadBars(path)
	if err != nil {
		return domain.PairSeries{}, err
	}
	x := make([]domain.PricePoint, len(bars))
	y := make([]domain.PricePoint, len(bars))
	for i, b := range bars {
		x[i] = domain.PricePoint{Time: b.Time, Price: b.PriceX}
		y[i] = domain.PricePoint{Time: b.Time, Price: b.PriceY}
	}
	return domain.NewPairSeries(pairID, x, y)
}

// Source locates a pair's history: one combined file, or one file per leg.
type Source struct {
	File  string // timestamp,price_x,price_y
	FileX string // timestamp,price of leg X
	FileY string // timestamp,price of leg Y
}

// Load reads the source as an aligned PairSeries. Relative paths are resolved against baseDir.
func (s Source) Load(pairID, baseDir string) (domain.PairSeries, error) {
	if s.File != "" {
		return LoadSeries(pairID, resolvePath(baseDir, s.File))
	}
	if s.FileX == "" || s.FileY == "" {
		return domain.PairSeries{}, fmt.Errorf("pair %s: no history file", pairID)
	}
	return LoadLegs(pairID, resolvePath(baseDir, s.FileX), resolvePath(baseDir, s.FileY))
}

func resolvePath(baseDir, path string) string {
	if baseDir != "" && !filepath.IsAbs(path) {
		return filepath.Join(baseDir, path)
	}
	return path
}

// CSVFeed replays one source per pair into the router. It implements domain.BarFeed.
type CSVFeed struct {
	router  *Router
	sources map[string]Source
	baseDir string
	delay   time.Duration // Pause between bars; 0 replays as fast as the inbox accepts

	connected atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}

	errMu sync.Mutex
	errs  []error
}

// NewCSVFeed creates a replay feed. Relative paths are resolved against baseDir.
func NewCSVFeed(router *Router, sources map[string]Source, baseDir string, delay time.Duration) *CSVFeed {
	return &CSVFeed{router: router, sources: sources, baseDir: baseDir, delay: delay, done: make(chan struct{})}
}

// Connect loads every source up front and starts one replay goroutine per pair.
func (f *CSVFeed) Connect(ctx context.Context) error {
	series := make(map[string][]domain.Bar, len(f.sources))
	for id, src := range f.sources {
		s, err := src.Load(id, f.baseDir)
		if err != nil {
			return fmt.Errorf("feed %s: %w", id, err)
		}
		series[id] = s.Bars()
	}

	ctx, f.cancel = context.WithCancel(ctx)
	f.connected.Store(true)
	for id, bars := range series {
		f.wg.Add(1)
		go f.replay(ctx, id, bars)
	}
	go func() {
		f.wg.Wait()
		f.connected.Store(false)
		close(f.done)
	}()
	return nil
}

func (f *CSVFeed) replay(ctx context.Context, pairID string, bars []domain.Bar) {
	defer f.wg.Done()
	slog.Info("Replaying bars", slog.String("pair", pairID), slog.Int("bars", len(bars)))

	for _, bar := range bars {
		if err := f.router.Route(ctx, pairID, bar); err != nil {
			if errors.Is(err, ErrPairHalted) {
				slog.Warn("Replay stopped for halted pair", slog.String("pair", pairID))
			} else if !errors.Is(err, context.Canceled) {
				f.addErr(fmt.Errorf("feed %s: %w", pairID, err))
			}
			return
		}
		if f.delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.delay):
			}
		}
	}
	slog.Info("Replay finished", slog.String("pair", pairID))
}

func (f *CSVFeed) addErr(err error) {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	f.errs = append(f.errs, err)
}

// Done is closed once every pair has been replayed or the feed was stopped.
func (f *CSVFeed) Done() <-chan struct{} {
	return f.done
}

// Err returns the joined replay errors, if any.
func (f *CSVFeed) Err() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return errors.Join(f.errs...)
}

// IsConnected reports whether a replay is in progress.
func (f *CSVFeed) IsConnected() bool {
	return f.connected.Load()
}

// Disconnect stops the replay and waits for the goroutines.
func (f *CSVFeed) Disconnect() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}
