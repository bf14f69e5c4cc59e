package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"shijian-backend/internal/chat"
	"shijian-backend/internal/middleware"
	"shijian-backend/internal/models"
	"shijian-backend/internal/services"
)

type stubAuthService struct {
	tokens      *models.AuthTokens
	err         error
	lastLogin   models.LoginRequest
	loggedOut   string
	lastRefresh string
}

func (s *stubAuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, *models.AuthTokens, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return &models.User{ID: uuid.New(), Email: req.Email, Username: req.Username}, s.tokens, nil
}

func (s *stubAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	s.lastLogin = req
	return s.tokens, s.err
}

func (s *stubAuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	s.lastRefresh = refreshToken
	return s.tokens, s.err
}

func (s *stubAuthService) Logout(ctx context.Context, refreshToken string) error {
	s.loggedOut = refreshToken
	return nil
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp.Error
}

// ─── Auth Handler Tests ───

func TestRegisterHandler_ValidInput(t *testing.T) {
	stub := &stubAuthService{tokens: &models.AuthTokens{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900}}
	h := &AuthHandler{authService: stub}

	body, _ := json.Marshal(models.RegisterRequest{Username: "libai", Email: "libai@example.com", Password: "StrongPass123!"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Register(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rr.Code)
	}

	var resp struct {
		User   models.User       `json:"user"`
		Tokens models.AuthTokens `json:"tokens"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.User.Email != "libai@example.com" {
		t.Errorf("Expected email 'libai@example.com', got %q", resp.User.Email)
	}
	if resp.Tokens.AccessToken != "access" {
		t.Errorf("Expected access token 'access', got %q", resp.Tokens.AccessToken)
	}
}

func TestRegisterHandler_ValidationErrorFields(t *testing.T) {
	stub := &stubAuthService{err: &services.ValidationError{Fields: map[string]string{"email": "Email is required"}}}
	h := &AuthHandler{authService: stub}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	h.Register(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}
	apiErr := decodeError(t, rr)
	if apiErr.Fields["email"] != "Email is required" {
		t.Errorf("Expected email field error, got %v", apiErr.Fields)
	}
}

func TestLoginHandler_InvalidBody(t *testing.T) {
	h := &AuthHandler{authService: &stubAuthService{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}
	if code := decodeError(t, rr).Code; code != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR, got %q", code)
	}
}

func TestLoginHandler_Unauthorized(t *testing.T) {
	stub := &stubAuthService{err: &services.UnauthorizedError{Message: "Invalid email or password"}}
	h := &AuthHandler{authService: stub}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"a@b.com","password":"wrong"}`))
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", rr.Code)
	}
	if stub.lastLogin.Email != "a@b.com" {
		t.Errorf("Expected login for 'a@b.com', got %q", stub.lastLogin.Email)
	}
}

func TestRefreshAndLogoutHandlers(t *testing.T) {
	stub := &stubAuthService{tokens: &models.AuthTokens{AccessToken: "next"}}
	h := &AuthHandler{authService: stub}

	rr := httptest.NewRecorder()
	h.Refresh(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refresh_token":"r1"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if stub.lastRefresh != "r1" {
		t.Errorf("Expected refresh token 'r1', got %q", stub.lastRefresh)
	}

	rr = httptest.NewRecorder()
	h.Logout(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", strings.NewReader(`{"refresh_token":"r2"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if stub.loggedOut != "r2" {
		t.Errorf("Expected logout of 'r2', got %q", stub.loggedOut)
	}
}

// ─── Error Mapping Tests ───

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &services.ValidationError{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", &services.ConflictError{Message: "taken"}, http.StatusConflict, "CONFLICT"},
		{"not found", &services.NotFoundError{Message: "missing"}, http.StatusNotFound, "NOT_FOUND"},
		{"unauthorized", &services.UnauthorizedError{Message: "no"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", &services.ForbiddenError{Message: "no"}, http.StatusForbidden, "FORBIDDEN"},
		{"rate limited", &services.RateLimitError{Message: "slow down"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"chat busy", chat.ErrBusy, http.StatusConflict, "CONFLICT"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-1"))
			rr := httptest.NewRecorder()

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.status {
				t.Fatalf("Expected status %d, got %d", tc.status, rr.Code)
			}
			apiErr := decodeError(t, rr)
			if apiErr.Code != tc.code {
				t.Errorf("Expected code %q, got %q", tc.code, apiErr.Code)
			}
			if apiErr.RequestID != "req-1" {
				t.Errorf("Expected request_id 'req-1', got %q", apiErr.RequestID)
			}
		})
	}
}

func TestErrorResp_FallsBackToHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "from-header")

	resp := errorResp("NOT_FOUND", "missing", req)
	if resp.Error.RequestID != "from-header" {
		t.Errorf("Expected request_id 'from-header', got %q", resp.Error.RequestID)
	}
}

// ─── Health Tests ───

type fixedCounter int

func (c fixedCounter) Len() int { return int(c) }

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandler(nil, fixedCounter(2), nil).Check(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp map[string]interface{}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", resp["status"])
	}
	if resp["chat_sessions"] != float64(2) {
		t.Errorf("Expected 2 chat sessions, got %v", resp["chat_sessions"])
	}

	rr = httptest.NewRecorder()
	NewHealthHandler([]string{"GEMINI_API_KEY not set"}, nil, nil).Check(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	resp = nil
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "degraded" {
		t.Errorf("Expected status degraded, got %v", resp["status"])
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthHandler_RedisUnreachable(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandler(nil, nil, stubPinger{err: errors.New("redis queue: connection refused")}).
		Check(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp map[string]interface{}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "degraded" {
		t.Errorf("Expected status degraded, got %v", resp["status"])
	}
	problems, _ := resp["problems"].([]interface{})
	if len(problems) != 1 || problems[0] != "redis queue: connection refused" {
		t.Errorf("Unexpected problems %v", resp["problems"])
	}

	rr = httptest.NewRecorder()
	NewHealthHandler(nil, nil, stubPinger{}).Check(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	resp = nil
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", resp["status"])
	}
}
