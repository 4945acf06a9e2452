package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"servicesim/internal/logger"
	"servicesim/internal/metrics"
	"servicesim/internal/rules"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	registry  *rules.Registry
	reloadErr error
	reloads   int
}

func (f *fakeBackend) Registry() *rules.Registry { return f.registry }

func (f *fakeBackend) Reload() error {
	f.reloads++
	return f.reloadErr
}

func newBackend(t *testing.T) *fakeBackend {
	t.Helper()
	call, err := rules.NewCall("user.ini", "GET", "user/$id", []*rules.Response{
		{Name: "bob", Status: 200, Generation: rules.Static{Body: "bob"}},
		{Name: "fallback", Status: 404, Generation: rules.Static{Body: "none"}},
	}, 2, 0.5)
	require.NoError(t, err)
	return &fakeBackend{registry: rules.NewRegistry([]*rules.Call{call}, rules.Env{})}
}

func do(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(newBackend(t), nil, logger.Quiet())

	w := do(router, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Service is healthy", resp.Message)
}

func TestCalls(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(newBackend(t), nil, logger.Quiet())

	w := do(router, http.MethodGet, "/api/calls")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool       `json:"success"`
		Data    []CallInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)

	call := resp.Data[0]
	assert.Equal(t, "user.ini", call.Name)
	assert.Equal(t, "GET", call.Method)
	assert.Equal(t, "user/$id", call.Path)
	assert.Equal(t, []string{"id"}, call.Placeholders)
	assert.Equal(t, []string{"bob", "fallback"}, call.Responses)
	assert.Equal(t, 2.0, call.Timeout)
	assert.Equal(t, 0.5, call.TimeoutProbability)
}

func TestReload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	backend := newBackend(t)
	router := NewRouter(backend, nil, logger.Quiet())

	w := do(router, http.MethodPost, "/api/reload")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, backend.reloads)
	assert.Contains(t, w.Body.String(), `"calls":1`)

	backend.reloadErr = errors.New("broken definition")
	w = do(router, http.MethodPost, "/api/reload")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "broken definition")
}

func TestMetricsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	m.ObserveReload(nil, 4)
	router := NewRouter(newBackend(t), m, logger.Quiet())

	w := do(router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "servicesim_loaded_calls 4"))

	w = do(NewRouter(newBackend(t), nil, logger.Quiet()), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
