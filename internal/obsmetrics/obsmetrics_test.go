package obsmetrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capgate/gateway/internal/metrics"
)

func TestHandlerExposesCapabilityCounters(t *testing.T) {
	store := metrics.NewStore()
	store.Record("cap.test.v1", true, 12.5, 0.01)
	store.Record("cap.test.v1", false, 30, 0)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(store).ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "capgate_capability_requests_total"))
	require.True(t, strings.Contains(body, `capability_id="cap.test.v1"`))
	require.True(t, strings.Contains(body, "capgate_uptime_seconds"))
}

func TestHandlerWithNoRecordedCapabilities(t *testing.T) {
	store := metrics.NewStore()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(store).ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "capgate_requests_per_minute"))
}
