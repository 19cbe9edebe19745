package coremain

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmkol/sharedlru/pkg/kv/mem_kv"
	"github.com/pmkol/sharedlru/pkg/lru_cache"
)

func newTestAPI(t *testing.T, capacity int) (*http.ServeMux, *mem_kv.Store) {
	t.Helper()
	s := mem_kv.NewStore()
	b, err := s.Namespace("api")
	require.NoError(t, err)
	c, err := lru_cache.New(lru_cache.Opts{Capacity: capacity, Backend: b})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	mux := http.NewServeMux()
	registerAPI(mux, c, b, zap.NewNop())
	return mux, s
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, target, strings.NewReader(body)))
	return w
}

func TestAPI(t *testing.T) {
	mux, s := newTestAPI(t, 2)

	w := do(mux, http.MethodGet, "/cache/k", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(mux, http.MethodPut, "/cache/k", "v")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "v", w.Body.String())

	w = do(mux, http.MethodGet, "/cache/k", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "v", w.Body.String())

	w = do(mux, http.MethodGet, "/cache/k?peek=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(mux, http.MethodPut, "/cache/empty", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = do(mux, http.MethodPut, "/cache/k?ttl=-1", "v")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(mux, http.MethodDelete, "/cache/k", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(mux, http.MethodGet, "/cache/k", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	do(mux, http.MethodPut, "/cache/a", "1")
	do(mux, http.MethodPut, "/cache/b", "2")
	w = do(mux, http.MethodPost, "/capacity?n=1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, 1, s.Len("api"))
	w = do(mux, http.MethodPost, "/capacity?n=0", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = do(mux, http.MethodPost, "/capacity?n=x", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(mux, http.MethodDelete, "/cache", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, 0, s.Len("api"))

	w = do(mux, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_Unavailable(t *testing.T) {
	mux, s := newTestAPI(t, 2)
	s.SetUnavailable(true)
	w := do(mux, http.MethodGet, "/cache/k", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = do(mux, http.MethodPut, "/cache/k", "v")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
