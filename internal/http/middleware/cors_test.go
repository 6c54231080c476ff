package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	widget := "https://clinic.example"
	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		preflight  bool
		wantOrigin string
		wantCalled bool
		wantStatus int
	}{
		{"listed origin", []string{widget}, http.MethodGet, widget, false, widget, true, http.StatusOK},
		{"unlisted origin", []string{widget}, http.MethodGet, "https://other.example", false, "", true, http.StatusOK},
		{"wildcard echoes origin", []string{" * "}, http.MethodGet, "https://other.example", false, "https://other.example", true, http.StatusOK},
		{"no origin header", []string{widget}, http.MethodPost, "", false, "", true, http.StatusOK},
		{"preflight", []string{widget}, http.MethodOptions, widget, true, widget, false, http.StatusNoContent},
		{"options without request method", []string{widget}, http.MethodOptions, widget, false, widget, true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(tt.method, "/holds", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCalled, called)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin == "" {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
				return
			}
			assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
			assert.Equal(t, "Retry-After, X-Request-ID", rec.Header().Get("Access-Control-Expose-Headers"))
		})
	}
}
