package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// Names holds the human-readable labels of an administrative area.
type Names struct {
	Council string `json:"council,omitempty"`
	County  string `json:"county,omitempty"`
	Gaeilge string `json:"gaeilge,omitempty"`
}

// Region is one administrative area with its aggregated capture counts.
// Geometry is expected in a projected coordinate system.
type Region struct {
	ID            string       `json:"id"`
	Names         Names        `json:"names"`
	Geometry      orb.Geometry `json:"-"`
	TotalBirds    int          `json:"total_birds"`
	InfectedBirds int          `json:"infected_birds"`
}

// HealthyBirds is the number of captured birds that tested negative.
func (r Region) HealthyBirds() int {
	return r.TotalBirds - r.InfectedBirds
}

// PropInfected returns infected/total, or 0 when nothing was captured.
func (r Region) PropInfected() float64 {
	if r.TotalBirds <= 0 {
		return 0
	}
	return float64(r.InfectedBirds) / float64(r.TotalBirds)
}

// PropHealthy returns healthy/total, or 0 when nothing was captured.
func (r Region) PropHealthy() float64 {
	if r.TotalBirds <= 0 {
		return 0
	}
	return float64(r.HealthyBirds()) / float64(r.TotalBirds)
}

// LabelPropInfected formats PropInfected as a percentage with at most two
// decimals, e.g. "12.5%".
func (r Region) LabelPropInfected() string {
	return formatPercent(r.PropInfected())
}

// LabelPropHealthy formats PropHealthy the same way as LabelPropInfected.
func (r Region) LabelPropHealthy() string {
	return formatPercent(r.PropHealthy())
}

// ValidateCounts checks the count invariants of a region.
func (r Region) ValidateCounts() error {
	switch {
	case r.TotalBirds < 0:
		return &InvalidValueError{RegionID: r.ID, Field: "total_birds", Reason: "negative count"}
	case r.InfectedBirds < 0:
		return &InvalidValueError{RegionID: r.ID, Field: "infected_birds", Reason: "negative count"}
	case r.InfectedBirds > r.TotalBirds:
		return &InvalidValueError{
			RegionID: r.ID,
			Field:    "infected_birds",
			Reason:   fmt.Sprintf("%d infected exceeds %d captured", r.InfectedBirds, r.TotalBirds),
		}
	}
	return nil
}

func formatPercent(p float64) string {
	rounded := math.Round(p*100*100) / 100
	s := fmt.Sprintf("%.2f", rounded)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + "%"
}

// Attribute selects the numeric variable the local statistic runs on.
type Attribute struct {
	Name  string
	Value func(Region) float64
}

var (
	// PropInfected is the share of captured birds that tested positive.
	PropInfected = Attribute{Name: "prop_infected", Value: Region.PropInfected}
	// PropHealthy is the share of captured birds that tested negative.
	PropHealthy = Attribute{Name: "prop_healthy", Value: Region.PropHealthy}
	// InfectedBirds is the raw positive count.
	InfectedBirds = Attribute{Name: "infected_birds", Value: func(r Region) float64 { return float64(r.InfectedBirds) }}
	// TotalBirds is the raw capture count.
	TotalBirds = Attribute{Name: "total_birds", Value: func(r Region) float64 { return float64(r.TotalBirds) }}
)

var attributes = map[string]Attribute{
	PropInfected.Name:  PropInfected,
	PropHealthy.Name:   PropHealthy,
	InfectedBirds.Name: InfectedBirds,
	TotalBirds.Name:    TotalBirds,
}

// AttributeByName looks up one of the predefined attributes.
func AttributeByName(name string) (Attribute, bool) {
	a, ok := attributes[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// AttributeNames lists the accepted attribute names.
func AttributeNames() []string {
	return []string{PropInfected.Name, PropHealthy.Name, InfectedBirds.Name, TotalBirds.Name}
}
