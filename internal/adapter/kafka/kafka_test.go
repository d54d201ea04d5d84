package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	report := &domain.HotspotReport{
		RunID:        "run-1",
		ComputedAt:   now,
		Attribute:    "prop_infected",
		Alpha:        0.05,
		Permutations: 999,
		Seed:         42,
		PValueMode:   domain.TwoSided,
	}
	res := domain.HotspotResult{RegionID: "7", Value: 0.25, Z: 2.1, P: 0.004, Label: domain.HotSpot, Neighbors: 3}

	msg, err := serializeToMessage(report, res, domain.Names{Council: "Sligo County Council", County: "Sligo"})
	require.NoError(t, err)

	assert.Equal(t, []byte("7"), msg.Key)
	assert.Equal(t, now, msg.Time)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "label", msg.Headers[0].Key)
	assert.Equal(t, []byte("hot spot"), msg.Headers[0].Value)
	assert.Equal(t, "run_id", msg.Headers[1].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[1].Value)
	assert.Equal(t, "computed_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)

	var got RegionMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, res, got.HotspotResult)
	assert.Equal(t, "Sligo", got.County)
	assert.Equal(t, uint64(42), got.Seed)
	assert.Equal(t, domain.TwoSided, got.PValueMode)
	assert.Contains(t, string(msg.Value), `"region_id":"7"`, "result fields are flattened")
}

func TestSerializeToMessage_OmitsMissingNames(t *testing.T) {
	msg, err := serializeToMessage(&domain.HotspotReport{RunID: "r"}, domain.HotspotResult{RegionID: "x"}, domain.Names{})
	require.NoError(t, err)
	assert.NotContains(t, string(msg.Value), "council")
}
