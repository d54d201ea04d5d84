package domain

import "fmt"

// PValueMode selects how permutation draws are turned into a pseudo p-value.
type PValueMode string

const (
	// TwoSided counts draws whose deviation from the conditional mean is at
	// least the observed deviation, in either direction.
	TwoSided PValueMode = "two-sided"
	// Folded counts draws at or above the observed sum and folds the count
	// onto the smaller tail.
	Folded PValueMode = "folded"
)

// ParsePValueMode validates a mode name.
func ParsePValueMode(s string) (PValueMode, error) {
	switch PValueMode(s) {
	case TwoSided, Folded:
		return PValueMode(s), nil
	default:
		return "", fmt.Errorf("unknown p-value mode %q (want %q or %q)", s, TwoSided, Folded)
	}
}

// LocalStat is the G* outcome for one region.
type LocalStat struct {
	RegionID    string  `json:"region_id"`
	Value       float64 `json:"value"`
	LocalSum    float64 `json:"local_sum"`
	Expected    float64 `json:"expected"`
	Variance    float64 `json:"variance"`
	Z           float64 `json:"z"`
	P           float64 `json:"p"`
	Cardinality int     `json:"neighbors"`
}

// LocalResult is the engine output: one LocalStat per region in weights
// order, plus non-fatal warnings such as LowResolutionWarning.
type LocalResult struct {
	Stats        []LocalStat
	Permutations int
	Seed         uint64
	Mode         PValueMode
	Warnings     []error
}
