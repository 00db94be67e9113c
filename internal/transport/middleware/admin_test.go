package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/heartmarshall/firstsignal-backend/pkg/ctxutil"
)

func TestAdminToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		token      string
		header     string
		bearer     string
		wantStatus int
	}{
		{name: "header token", token: "s3cret", header: "s3cret", wantStatus: http.StatusOK},
		{name: "bearer token", token: "s3cret", bearer: "Bearer s3cret", wantStatus: http.StatusOK},
		{name: "lowercase bearer", token: "s3cret", bearer: "bearer s3cret", wantStatus: http.StatusOK},
		{name: "wrong token", token: "s3cret", header: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing token", token: "s3cret", wantStatus: http.StatusUnauthorized},
		{name: "prefix of token", token: "s3cret", header: "s3c", wantStatus: http.StatusUnauthorized},
		{name: "admin disabled", token: "", header: "", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var sawAdmin bool
			handler := AdminToken(tt.token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sawAdmin = ctxutil.IsAdmin(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/admin/signals", nil)
			if tt.header != "" {
				req.Header.Set(AdminTokenHeader, tt.header)
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", tt.bearer)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, sawAdmin)
		})
	}
}
