package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAreRegistered(t *testing.T) {
	before := testutil.ToFloat64(AttendanceEvents.WithLabelValues("IN"))
	AttendanceEvents.WithLabelValues("IN").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AttendanceEvents.WithLabelValues("IN")))

	GallerySize.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(GallerySize))
}

func TestMetricNames(t *testing.T) {
	MatchDecisions.WithLabelValues("MATCHED").Inc()
	assert.GreaterOrEqual(t, testutil.CollectAndCount(MatchDecisions, "ponto_match_decisions_total"), 1)
}
