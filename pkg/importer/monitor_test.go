package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepMonitor(t *testing.T) {
	m := NewStepMonitor(testLogger())
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	for _, d := range []time.Duration{time.Second, 3 * time.Second} {
		stop := m.Bench("prefetch_places")
		clock = clock.Add(d)
		stop()
	}
	stop := m.Bench("build")
	clock = clock.Add(time.Millisecond)
	stop()

	stats := m.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "build", stats[0].Step)
	assert.Equal(t, "prefetch_places", stats[1].Step)
	assert.Equal(t, 2, stats[1].Count)
	assert.Equal(t, 4*time.Second, stats[1].Total)
	assert.Equal(t, 3*time.Second, stats[1].Max)
	assert.Equal(t, 2*time.Second, stats[1].Average())

	m.Report(context.Background())
	m.Reset()
	assert.Empty(t, m.Stats())
	assert.Zero(t, StepStats{}.Average())
}
