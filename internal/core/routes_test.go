package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"tickler/internal/types"
)

func newMountedServer(t *testing.T) *Server {
	t.Helper()

	srv := newTestServer(t)
	srv.V1RouteRegistrars = []func(chi.Router){
		func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
				JSON(w, r, http.StatusOK, APIResponse{Data: "pong"})
			})
		},
	}
	srv.MountRoutes()
	return srv
}

func TestMountRoutes_HealthIsPublic(t *testing.T) {
	srv := newMountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 without ops token, got %d", rec.Code)
	}
}

func TestMountRoutes_V1RequiresOpsToken(t *testing.T) {
	srv := newMountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeAuthTokenMissing) {
		t.Errorf("expected code %q, got %q", types.ErrCodeAuthTokenMissing, resp.Error.Code)
	}
}

func TestMountRoutes_V1WithToken(t *testing.T) {
	srv := newMountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set("X-Ops-Token", testOpsToken)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMountRoutes_GlobalMiddlewareApplied(t *testing.T) {
	srv := newMountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id response header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on all responses")
	}
}

func TestMountRoutes_PanicInHandlerReturns500(t *testing.T) {
	srv := newTestServer(t)
	srv.V1RouteRegistrars = []func(chi.Router){
		func(r chi.Router) {
			r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
				panic("handler bug")
			})
		},
	}
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/v1/boom", nil)
	req.Header.Set("X-Ops-Token", testOpsToken)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}
