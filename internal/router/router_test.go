package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"shijian-backend/internal/handlers"
	"shijian-backend/internal/middleware"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	h := Handlers{
		Health:   handlers.NewHealthHandler(nil, nil, nil),
		Auth:     &handlers.AuthHandler{},
		Poem:     &handlers.PoemHandler{},
		Analysis: &handlers.AnalysisHandler{},
		Chat:     &handlers.ChatHandler{},
	}
	r, stop := New(middleware.NewJWTAuth("test-secret"), h, "http://localhost:5173")
	t.Cleanup(stop)
	return r
}

func TestRouter_RegistersRoutes(t *testing.T) {
	r := testRouter(t)

	routes := map[string]bool{}
	chi.Walk(r.(chi.Routes), func(method, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		routes[method+" "+route] = true
		return nil
	})

	expected := []string{
		"GET /health",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"GET /api/v1/poems/search",
		"GET /api/v1/poems/{id}",
		"GET /api/v1/poems/{id}/ws",
		"GET /api/v1/authors/{id}/poems",
		"POST /api/v1/ai/analysis",
		"POST /api/v1/ai/chat",
		"POST /api/v1/chat/sessions/",
		"POST /api/v1/chat/sessions/{id}/messages",
		"DELETE /api/v1/chat/sessions/{id}/messages",
		"GET /api/v1/chat/sessions/{id}/ws",
	}
	for _, route := range expected {
		if !routes[route] {
			t.Errorf("Expected route %q to be registered", route)
		}
	}
}

func TestRouter_HealthCarriesRequestID(t *testing.T) {
	r := testRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("Expected X-Request-ID header on response")
	}
}

func TestRouter_LogoutRequiresToken(t *testing.T) {
	r := testRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}
