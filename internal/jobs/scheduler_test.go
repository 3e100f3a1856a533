package jobs

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "mediaingest_dependency_up" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "dependency" && l.GetValue() == name {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("no gauge for %s", name)
	return 0
}

func TestProbeDependencies(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler("@every 1h", map[string]Probe{
		"jobs_test_db":    func(context.Context) error { return nil },
		"jobs_test_store": func(context.Context) error { return errors.New("bucket missing") },
	}, zerolog.New(&buf))

	s.ProbeDependencies()

	assert.Equal(t, 1.0, gaugeValue(t, "jobs_test_db"))
	assert.Equal(t, 0.0, gaugeValue(t, "jobs_test_store"))
	assert.Contains(t, buf.String(), "dependency probe failed")
	assert.Contains(t, buf.String(), "jobs_test_store")
}

func TestSchedulerRunsOnSchedule(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler("@every 1s", map[string]Probe{
		"jobs_test_tick": func(context.Context) error {
			calls.Add(1)
			return nil
		},
	}, zerolog.Nop())

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler("every other tuesday", map[string]Probe{"x": func(context.Context) error { return nil }}, zerolog.Nop())
	assert.Error(t, s.Start())
}
