package domain

import (
	"errors"
	"fmt"
)

// Sentinel categories. Every typed error below unwraps to one of these so
// callers can branch with errors.Is and still recover details with errors.As.
var (
	ErrDegenerateInput   = errors.New("degenerate input")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInvalidValue      = errors.New("invalid value")
	ErrLowResolution     = errors.New("low resolution")
)

// DegenerateInputError reports too few regions or an unusable geometry.
type DegenerateInputError struct {
	RegionID string
	Reason   string
}

func (e *DegenerateInputError) Error() string {
	if e.RegionID == "" {
		return fmt.Sprintf("degenerate input: %s", e.Reason)
	}
	return fmt.Sprintf("degenerate input: region %q: %s", e.RegionID, e.Reason)
}

func (e *DegenerateInputError) Unwrap() error { return ErrDegenerateInput }

// DimensionMismatchError reports an attribute vector that does not line up
// with the weights it is analysed against.
type DimensionMismatchError struct {
	Values  int
	Regions int
	Detail  string
}

func (e *DimensionMismatchError) Error() string {
	msg := fmt.Sprintf("dimension mismatch: %d values for %d regions", e.Values, e.Regions)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// InvalidValueError reports a non-finite attribute or an impossible count.
type InvalidValueError struct {
	RegionID string
	Field    string
	Value    float64
	Reason   string
}

func (e *InvalidValueError) Error() string {
	field := e.Field
	if field == "" {
		field = "value"
	}
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s for region %q: %s", field, e.RegionID, e.Reason)
	}
	return fmt.Sprintf("invalid %s for region %q: %v", field, e.RegionID, e.Value)
}

func (e *InvalidValueError) Unwrap() error { return ErrInvalidValue }

// LowResolutionWarning is non-fatal: the permutation count limits the smallest
// p-value that can be observed to 1/(Permutations+1).
type LowResolutionWarning struct {
	Permutations int
	Alpha        float64 // zero when raised without reference to a threshold
}

// MinPValue is the smallest attainable pseudo p-value.
func (w *LowResolutionWarning) MinPValue() float64 {
	return 1 / float64(w.Permutations+1)
}

func (w *LowResolutionWarning) Error() string {
	if w.Alpha > 0 {
		return fmt.Sprintf("low resolution: %d permutations give minimum p-value %.4g, not below alpha %.4g",
			w.Permutations, w.MinPValue(), w.Alpha)
	}
	return fmt.Sprintf("low resolution: %d permutations give minimum p-value %.4g",
		w.Permutations, w.MinPValue())
}

func (w *LowResolutionWarning) Unwrap() error { return ErrLowResolution }
