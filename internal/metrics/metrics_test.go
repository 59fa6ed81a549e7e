package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := NewMetrics()
	m.IncrementCounter("scanner.breaches")
	m.IncrementCounterBy("scanner.breaches", 4)

	require.Equal(t, int64(5), m.GetCounters()["scanner.breaches"])
}

func TestTimers(t *testing.T) {
	m := NewMetrics()
	m.RecordTimer("scanner.scan", 100)
	m.RecordTimer("scanner.scan", 300)

	timer := m.GetTimers()["scanner.scan"]
	require.Equal(t, int64(2), timer.Count)
	require.Equal(t, int64(400), timer.TotalTimeMs)
	require.Equal(t, 200.0, timer.AverageTimeMs)
	require.Equal(t, int64(100), timer.MinTimeMs)
	require.Equal(t, int64(300), timer.MaxTimeMs)
}

func TestErrorRates(t *testing.T) {
	m := NewMetrics()
	m.RecordSuccess("commands.CreateCase")
	m.RecordSuccess("commands.CreateCase")
	m.RecordError("commands.CreateCase")

	rate := m.GetErrorRates()["commands.CreateCase"]
	require.Equal(t, int64(3), rate.Total)
	require.Equal(t, int64(1), rate.Errors)
	require.InDelta(t, 33.3, rate.ErrorRate, 0.1)
}

func TestHealthChecks(t *testing.T) {
	m := NewMetrics()
	m.SetHealth("database", true)
	m.SetHealth("redis", false)

	checks := m.GetHealthChecks()
	require.True(t, checks["database"])
	require.False(t, checks["redis"])
}
