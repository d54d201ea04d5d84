package observability

import (
	"log/slog"
	"testing"

	"github.com/couchcryptid/bird-flu-hotspots/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.Runs))
	require.NoError(t, reg.Register(m.Spots))

	m.Runs.WithLabelValues("success").Inc()
	m.Spots.WithLabelValues("hot").Set(3)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("success")), 1e-12)
	assert.InDelta(t, 3.0, testutil.ToFloat64(m.Spots.WithLabelValues("hot")), 1e-12)
}
