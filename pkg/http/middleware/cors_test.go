package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCORS(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins:  []string{"https://desk.internal"},
		AllowMethods:  []string{http.MethodGet},
		ExposeHeaders: []string{echo.HeaderCacheControl},
		MaxAge:        600,
	}))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"allowed", http.MethodGet, "https://desk.internal", http.StatusOK, "https://desk.internal"},
		{"foreign origin", http.MethodGet, "https://evil.test", http.StatusOK, ""},
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://desk.internal", http.StatusNoContent, "https://desk.internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/x", nil)
			if tt.origin != "" {
				req.Header.Set(echo.HeaderOrigin, tt.origin)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != tt.wantOrigin {
				t.Fatalf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.method == http.MethodOptions && rec.Header().Get(echo.HeaderAccessControlMaxAge) != "600" {
				t.Fatalf("preflight max-age missing")
			}
		})
	}
}
