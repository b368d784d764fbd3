package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func healthResponse(t *testing.T, redisUp, dbUp bool) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", healthHandler(
		func(context.Context) bool { return redisUp },
		func(context.Context) bool { return dbUp },
	))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health body: %v", err)
	}
	return w.Code, body
}

func TestHealthzHealthy(t *testing.T) {
	code, body := healthResponse(t, true, true)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want 200", code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want %q", body["status"], "ok")
	}
}

func TestHealthzDegraded(t *testing.T) {
	cases := []struct {
		name          string
		redisUp, dbUp bool
	}{
		{"redis down", false, true},
		{"db down", true, false},
		{"both down", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := healthResponse(t, tc.redisUp, tc.dbUp)
			if code != http.StatusServiceUnavailable {
				t.Errorf("status code = %d, want 503", code)
			}
			if body["status"] != "degraded" {
				t.Errorf("status = %v, want %q", body["status"], "degraded")
			}
			if body["redis"] != tc.redisUp {
				t.Errorf("redis = %v, want %v", body["redis"], tc.redisUp)
			}
			if body["db"] != tc.dbUp {
				t.Errorf("db = %v, want %v", body["db"], tc.dbUp)
			}
		})
	}
}
