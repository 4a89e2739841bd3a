package httptransport

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealwatch/pkg/testutil"
)

func newTestRouter(handlers ...Registrar) http.Handler {
	return NewRouter(Deps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Handlers: handlers,
	})
}

func TestHealthWithoutBackends(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	body := testutil.UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, "ok", (*body)["status"])
}

func TestRequestIDPropagation(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := testutil.DoRequest(router, req)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "inbound-id")
	rr = testutil.DoRequest(router, req)
	assert.Equal(t, "inbound-id", rr.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

type panickingRegistrar struct{}

func (panickingRegistrar) Register(r chi.Router) {
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	})
}

func TestRecoveryTurnsPanicsInto500(t *testing.T) {
	router := newTestRouter(panickingRegistrar{})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rr := testutil.DoRequest(router, req)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
