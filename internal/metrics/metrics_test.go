package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whatsapp-panel-server/pkg/evolution"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveGateway(t *testing.T) {
	before := testutil.CollectAndCount(GatewayRequests)

	ObserveGateway("metrics_test_op", 10*time.Millisecond, nil)
	ObserveGateway("metrics_test_op", 10*time.Millisecond, &evolution.APIError{StatusCode: 404})
	ObserveGateway("metrics_test_op", 10*time.Millisecond, errors.New("dial tcp"))

	assert.Equal(t, before+3, testutil.CollectAndCount(GatewayRequests), "one series per status")
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/probe", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/probe", "204")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "panel_http_requests_total")
}
