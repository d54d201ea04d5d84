package domain

import (
	"time"

	"github.com/google/uuid"
)

// HotspotResult is the per-region row of a report.
type HotspotResult struct {
	RegionID  string  `json:"region_id"`
	Value     float64 `json:"value"`
	Z         float64 `json:"z"`
	P         float64 `json:"p"`
	Label     Label   `json:"label"`
	Neighbors int     `json:"neighbors"`
}

// HotspotReport is the output artefact of one run. Regions is the input table
// the run was computed from; it is kept for sinks that need geometry and is
// never written to.
type HotspotReport struct {
	RunID        string          `json:"run_id"`
	ComputedAt   time.Time       `json:"computed_at"`
	Attribute    string          `json:"attribute"`
	Alpha        float64         `json:"alpha"`
	Permutations int             `json:"permutations"`
	Seed         uint64          `json:"seed"`
	PValueMode   PValueMode      `json:"p_value_mode"`
	Results      []HotspotResult `json:"results"`
	Partition    Partition       `json:"partition"`
	Islands      []string        `json:"islands"`
	Warnings     []string        `json:"warnings,omitempty"`

	Regions []Region `json:"-"`
}

// ReportParams describes how a report was computed.
type ReportParams struct {
	Attribute string
	Alpha     float64
}

// NewReport assembles a report from engine output. Results follow the order
// of res.Stats.
func NewReport(params ReportParams, res *LocalResult, w *Weights, regions []Region) (*HotspotReport, error) {
	part, err := ClassifyAll(res.Stats, params.Alpha)
	if err != nil {
		return nil, err
	}

	results := make([]HotspotResult, len(res.Stats))
	for i, s := range res.Stats {
		results[i] = HotspotResult{
			RegionID:  s.RegionID,
			Value:     s.Value,
			Z:         s.Z,
			P:         s.P,
			Label:     Classify(s.Z, s.P, params.Alpha),
			Neighbors: s.Cardinality,
		}
	}

	warnings := make([]string, 0, len(res.Warnings))
	for _, wrn := range res.Warnings {
		warnings = append(warnings, wrn.Error())
	}

	islands := w.Islands()
	if islands == nil {
		islands = []string{}
	}

	return &HotspotReport{
		RunID:        uuid.NewString(),
		ComputedAt:   clock.Now().UTC(),
		Attribute:    params.Attribute,
		Alpha:        params.Alpha,
		Permutations: res.Permutations,
		Seed:         res.Seed,
		PValueMode:   res.Mode,
		Results:      results,
		Partition:    part,
		Islands:      islands,
		Warnings:     warnings,
		Regions:      regions,
	}, nil
}

// ByRegion indexes results by region id.
func (r *HotspotReport) ByRegion() map[string]HotspotResult {
	out := make(map[string]HotspotResult, len(r.Results))
	for _, res := range r.Results {
		out[res.RegionID] = res
	}
	return out
}
