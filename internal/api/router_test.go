package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/wonny/factorlab/internal/api/handlers"
	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/testutil"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

type emptyQuerier struct{ cal *calendar.Calendar }

func (e emptyQuerier) Calendar() *calendar.Calendar { return e.cal }
func (e emptyQuerier) AvailableAt(context.Context, string) ([]store.Record, error) {
	return nil, nil
}
func (e emptyQuerier) FactorsAt(context.Context, string, string, string) ([]store.Record, []string, error) {
	return nil, nil, nil
}
func (e emptyQuerier) CSSRange(context.Context, string, string) ([]store.Record, error) {
	return nil, nil
}
func (e emptyQuerier) ICovAt(context.Context, string) ([]string, *mat.SymDense, error) {
	return nil, nil, nil
}

func newRouter(t *testing.T, opts RouterOptions) http.Handler {
	t.Helper()
	q := handlers.NewQueryHandler(emptyQuerier{cal: testutil.Calendar(t, 5)}, nil, logger.Nop())
	return NewRouter(q, logger.Nop(), opts)
}

func serve(h http.Handler, method, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, url, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(newRouter(t, RouterOptions{}), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestEmptyResultsAreArrays(t *testing.T) {
	h := newRouter(t, RouterOptions{})
	rec := serve(h, http.MethodGet, "/api/available?date=20240102")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = serve(h, http.MethodGet, "/api/icov?date=20240102")
	assert.Contains(t, rec.Body.String(), `"cov":[]`)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newRouter(t, RouterOptions{RequestsPerSecond: 100, Burst: 10})
	rec := serve(h, http.MethodPost, "/api/css?bgn=1&stp=2")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "method not allowed")

	rec = serve(h, http.MethodDelete, "/api/factors/raw/REOC")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/nothing").Code)
}

func TestRateLimit(t *testing.T) {
	h := newRouter(t, RouterOptions{RequestsPerSecond: 0.001, Burst: 2})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(h, http.MethodGet, "/api/available?date=20240102").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// health is not rate limited
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health").Code)
}

func TestMetricsCountRoutes(t *testing.T) {
	m := metrics.New()
	h := newRouter(t, RouterOptions{Metrics: m})
	serve(h, http.MethodGet, "/api/factors/raw/REOC?date=20240102")

	rec := serve(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `factorlab_http_requests_total{code="200",route="/api/factors/{stage}/{class}"} 1`)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := serve(h, http.MethodGet, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
