package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDependencyGauge(t *testing.T) {
	SetDependencyUp("postgres", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(dependencyUp.WithLabelValues("postgres")))

	SetDependencyUp("postgres", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(dependencyUp.WithLabelValues("postgres")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(moderationDecisions.WithLabelValues("REJECT", "true"))
	RecordModeration("REJECT", true)
	assert.Equal(t, before+1, testutil.ToFloat64(moderationDecisions.WithLabelValues("REJECT", "true")))

	saved := testutil.ToFloat64(bytesSaved)
	AddBytesSaved(-10)
	AddBytesSaved(100)
	assert.Equal(t, saved+100, testutil.ToFloat64(bytesSaved))

	ObserveStage("validate", "ok", time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(stageDuration))
}
