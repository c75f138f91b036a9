package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serve(h http.Handler, method string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleReadyCheck(t *testing.T) {
	ready := false
	h := HandleReadyCheck(func() bool { return ready })

	require.Equal(t, http.StatusServiceUnavailable, serve(h, http.MethodGet, nil).Code)

	ready = true
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, nil).Code)
}

func TestHandleVersion(t *testing.T) {
	rec := serve(HandleVersion("v1.2.3"), http.MethodGet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v1.2.3", rec.Body.String())
}

func TestHandleWithCORS(t *testing.T) {
	h := HandleWithCORS(http.HandlerFunc(HandleHealthCheck))

	rec := serve(h, http.MethodOptions, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(h, http.MethodGet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestVerifyAuthTokenHandler(t *testing.T) {
	h := VerifyAuthTokenHandler("secret", http.HandlerFunc(HandleHealthCheck))

	require.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, nil).Code)
	require.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, http.Header{
		"Authorization": {"Bearer nope"},
	}).Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, http.Header{
		"Authorization": {"Bearer secret"},
	}).Code)

	open := VerifyAuthTokenHandler("", http.HandlerFunc(HandleHealthCheck))
	require.Equal(t, http.StatusOK, serve(open, http.MethodGet, nil).Code)
}

func TestMetricsPathFormatter(t *testing.T) {
	require.Equal(t, "/search", MetricsPathFormatter(http.StatusOK, "/search"))
	require.Empty(t, MetricsPathFormatter(http.StatusNotFound, "/nope"))
	require.Empty(t, MetricsPathFormatter(http.StatusBadRequest, "/search"))
}
