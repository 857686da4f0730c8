package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applogger "CoinPull/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho(reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	l := applogger.Nop()
	e.Use(RequestID(), Access(l, reg, 0), Recover(l))
	e.GET("/tasks/:id", func(c echo.Context) error { return c.String(http.StatusOK, GetRequestID(c)) })
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	return e
}

func serve(e *echo.Echo, path string, hdr http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDKeepsOrAssigns(t *testing.T) {
	e := newEcho(prometheus.NewRegistry())

	rec := serve(e, "/tasks/1", http.Header{HeaderRequestID: {"abc"}})
	assert.Equal(t, "abc", rec.Body.String())
	assert.Equal(t, "abc", rec.Header().Get(HeaderRequestID))

	rec = serve(e, "/tasks/1", nil)
	assert.Len(t, rec.Body.String(), 36)
	assert.Equal(t, rec.Body.String(), rec.Header().Get(HeaderRequestID))
}

func TestRecoverReturns500(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEcho(reg)

	rec := serve(e, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	expected := `
# HELP coinpull_http_requests_total HTTP requests by route, method and status
# TYPE coinpull_http_requests_total counter
coinpull_http_requests_total{method="GET",route="/boom",status="500"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "coinpull_http_requests_total"))
}

func TestAccessUsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEcho(reg)
	serve(e, "/tasks/1", nil)
	serve(e, "/tasks/2", nil)

	// a second middleware on the same registry reuses the collectors
	_ = Access(applogger.Nop(), reg, 0)

	expected := `
# HELP coinpull_http_requests_total HTTP requests by route, method and status
# TYPE coinpull_http_requests_total counter
coinpull_http_requests_total{method="GET",route="/tasks/:id",status="200"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "coinpull_http_requests_total"))
}
