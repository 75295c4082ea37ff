package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/flowguard/internal/runtime/config"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	"github.com/drblury/flowguard/internal/runtime/jsoncodec"
)

func TestStartWebUIServer(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		svc := newTestService(t, nil, ServiceDependencies{})
		svc.StartWebUIServer()
		assert.Empty(t, svc.httpServers)
	})

	t.Run("enabled on the default port", func(t *testing.T) {
		svc := newTestService(t, &configpkg.Config{WebUIEnabled: true}, ServiceDependencies{})
		svc.StartWebUIServer()
		assert.Contains(t, svc.httpServers, DefaultWebUIPort)
	})
}

func TestWebUIWorkflowsEndpoint(t *testing.T) {
	svc := newTestService(t, &configpkg.Config{WebUIEnabled: true, WebUIPort: 9200}, ServiceDependencies{})
	require.NoError(t, RegisterWorkflow(svc, WorkflowRegistration{
		Name:         "orders",
		ConsumeQueue: "orders.in",
		Handler:      passThrough,
		Interceptors: []interceptor.Interceptor{interceptor.Funcs{InterceptorName: "log"}},
	}))
	svc.StartWebUIServer()

	rec := httptest.NewRecorder()
	svc.httpServers[9200].ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workflows", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []WorkflowInfo
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "orders", got[0].Name)
	assert.Equal(t, []string{"log"}, got[0].Interceptors)
}

func TestWebUIInterceptorsAndResources(t *testing.T) {
	svc := newTestService(t, &configpkg.Config{WebUIEnabled: true, WebUIPort: 9201}, ServiceDependencies{})
	svc.StartWebUIServer()
	mux := svc.httpServers[9201]

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/interceptors", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/resources", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutines")
}

func TestWebUIMethodsAndCORS(t *testing.T) {
	svc := newTestService(t, &configpkg.Config{
		WebUIEnabled:            true,
		WebUIPort:               9202,
		WebUICORSAllowedOrigins: []string{"https://ops.example.com"},
	}, ServiceDependencies{})
	svc.StartWebUIServer()
	mux := svc.httpServers[9202]

	req := httptest.NewRequest(http.MethodOptions, "/api/workflows", nil)
	req.Header.Set("Origin", "https://OPS.example.com")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://OPS.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workflows", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Allow"))
}

func TestGetAllowedCORSOrigin(t *testing.T) {
	svc := &Service{Conf: &configpkg.Config{WebUICORSAllowedOrigins: []string{"*"}}}
	assert.Equal(t, "*", svc.getAllowedCORSOrigin("https://anything"))

	svc.Conf = nil
	assert.Empty(t, svc.getAllowedCORSOrigin("https://anything"))
}
