package domain

import (
	"fmt"
	"math"
)

// DefaultAlpha is the conventional 5% significance threshold.
const DefaultAlpha = 0.05

// Label is the hot-spot classification of a region.
type Label string

const (
	HotSpot        Label = "hot spot"
	ColdSpot       Label = "cold spot"
	NotSignificant Label = "not significant"
)

// ParseLabel accepts the three label strings.
func ParseLabel(s string) (Label, bool) {
	switch Label(s) {
	case HotSpot, ColdSpot, NotSignificant:
		return Label(s), true
	}
	return "", false
}

// Classify labels a single (z, p) pair. Ties at p == alpha and z == 0 are not
// significant.
func Classify(z, p, alpha float64) Label {
	if !(p < alpha) {
		return NotSignificant
	}
	switch {
	case z > 0:
		return HotSpot
	case z < 0:
		return ColdSpot
	default:
		return NotSignificant
	}
}

// ValidateAlpha requires alpha in the open interval (0, 1).
func ValidateAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha <= 0 || alpha >= 1 {
		return fmt.Errorf("alpha must be in (0,1), got %v", alpha)
	}
	return nil
}

// Partition splits region ids into three disjoint sets that together cover
// every region, each in input order.
type Partition struct {
	Hot            []string `json:"hot"`
	Cold           []string `json:"cold"`
	NotSignificant []string `json:"not_significant"`
}

// Len is the total number of regions across the three sets.
func (p Partition) Len() int {
	return len(p.Hot) + len(p.Cold) + len(p.NotSignificant)
}

// ClassifyAll partitions local statistics at the given threshold. It does not
// modify stats.
func ClassifyAll(stats []LocalStat, alpha float64) (Partition, error) {
	if err := ValidateAlpha(alpha); err != nil {
		return Partition{}, err
	}
	part := Partition{
		Hot:            []string{},
		Cold:           []string{},
		NotSignificant: []string{},
	}
	for _, s := range stats {
		switch Classify(s.Z, s.P, alpha) {
		case HotSpot:
			part.Hot = append(part.Hot, s.RegionID)
		case ColdSpot:
			part.Cold = append(part.Cold, s.RegionID)
		default:
			part.NotSignificant = append(part.NotSignificant, s.RegionID)
		}
	}
	return part, nil
}
