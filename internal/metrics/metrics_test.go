package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAuthEvent(t *testing.T) {
	m := New()

	m.RecordAuthEvent(EventLogin, nil)
	m.RecordAuthEvent(EventLogin, nil)
	m.RecordAuthEvent(EventLogin, errors.New("bad password"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.AuthEvents.WithLabelValues(EventLogin, "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthEvents.WithLabelValues(EventLogin, "failure")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.RecordAuthEvent(EventSignup, nil) })
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordAuthEvent(EventSignup, nil)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gameauth_auth_events_total{event="signup",result="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
