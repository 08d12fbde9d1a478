package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordOutcome(t *testing.T) {
	c := NewCollector(DefaultConfig())

	done := c.AttemptStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attemptsActive))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.attemptsActive))

	c.RecordOutcome("Normal", "normal", 1.0, 200)
	c.RecordOutcome("Error", "ratio_below_threshold", 0.5, 200)
	c.RecordOutcome("Error", "no_media", -1, 486)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.attemptsTotal.WithLabelValues("Normal", "normal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attemptsTotal.WithLabelValues("Error", "no_media")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.finalStatus.WithLabelValues("2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finalStatus.WithLabelValues("4xx")))

	c.MediaAttachFailed("playback")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attachFailures.WithLabelValues("playback")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(DefaultConfig())
	c.RecordOutcome("Normal", "normal", 0.95, 200)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "callprobe_attempt_total"), body)
	assert.Contains(t, body, "callprobe_attempt_packet_symmetry_ratio_bucket")
}

func TestCollector_Disabled(t *testing.T) {
	var nilCollector *Collector
	for _, c := range []*Collector{NewCollector(Config{}), nilCollector} {
		assert.NotPanics(t, func() {
			c.AttemptStarted()()
			c.RecordOutcome("Normal", "normal", 1, 200)
			c.MediaAttachFailed("recording")
		})
		assert.Nil(t, c.Registry())
	}
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "none", statusClass(0))
	assert.Equal(t, "2xx", statusClass(200))
	assert.Equal(t, "4xx", statusClass(486))
	assert.Equal(t, "5xx", statusClass(503))
}
