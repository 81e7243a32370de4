package domain

import (
	"errors"
	"fmt"
	"time"
)

// RecoverableError defines an interface for errors that only cost the current cycle
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether the pair's evaluation loop may continue after err.
// Sentinel cycle errors (degenerate fit, undefined z-score, duplicate bar) are recoverable too.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return errors.Is(err, ErrDegenerateRegression) || errors.Is(err, ErrUndefinedZScore) || errors.Is(err, ErrDuplicateBar)
}

// InsufficientDataError is returned when a window is shorter than a component needs.
// The caller skips the cycle.
type InsufficientDataError struct {
	Op   string // Component that rejected the window (e.g., "coint", "hedge")
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d points, have %d", e.Op, e.Need, e.Have)
}

func (e *InsufficientDataError) IsRecoverable() bool {
	return true
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// NewInsufficientData creates an InsufficientDataError
func NewInsufficientData(op string, need, have int) *InsufficientDataError {
	return &InsufficientDataError{Op: op, Need: need, Have: have}
}

// MisalignedSeriesError reports the first index where the two legs disagree.
// Never recoverable: the input must be fixed upstream.
type MisalignedSeriesError struct {
	Index  int
	TimeX  time.Time
	TimeY  time.Time
	Reason string
}

func (e *MisalignedSeriesError) Error() string {
	return fmt.Sprintf("misaligned series at index %d (x=%s, y=%s): %s",
		e.Index, e.TimeX.Format(time.RFC3339), e.TimeY.Format(time.RFC3339), e.Reason)
}

func (e *MisalignedSeriesError) IsRecoverable() bool {
	return false
}

func (e *MisalignedSeriesError) Unwrap() error {
	return ErrMisalignedSeries
}

// ConfigError represents a configuration error (never recoverable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRecoverable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrInsufficientData is the sentinel wrapped by InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateRegression is returned when a regression denominator has zero variance.
	ErrDegenerateRegression = errors.New("degenerate regression")

	// ErrUndefinedZScore is returned when the rolling std-dev is zero or the window is too short.
	ErrUndefinedZScore = errors.New("undefined z-score")

	// ErrDuplicateBar is returned when the newest bar is delivered again unchanged.
	ErrDuplicateBar = errors.New("duplicate bar")

	// ErrMisalignedSeries is the sentinel wrapped by MisalignedSeriesError.
	ErrMisalignedSeries = errors.New("misaligned series")

	// ErrEstimatorUnavailable is returned for a recognised but unimplemented hedge estimator.
	ErrEstimatorUnavailable = errors.New("hedge estimator unavailable")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
