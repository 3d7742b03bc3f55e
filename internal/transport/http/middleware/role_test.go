package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/license-notifications/internal/domain"
	jwtinfra "github.com/license-notifications/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
)

func TestRequireRole_NoClaimsInContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name    string
		role    string
		allowed []string
		want    int
	}{
		{"wrong role", domain.RoleUser, []string{domain.RoleAdmin}, http.StatusForbidden},
		{"matching role", domain.RoleAdmin, []string{domain.RoleAdmin}, http.StatusOK},
		{"one of several", domain.RoleUser, []string{domain.RoleAdmin, domain.RoleUser}, http.StatusOK},
		{"empty role", "", []string{domain.RoleAdmin}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := WithClaims(context.Background(), &jwtinfra.Claims{UserID: "u1", Role: tc.role})
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
			rr := httptest.NewRecorder()
			RequireRole(tc.allowed...)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusForbidden {
				assert.JSONEq(t, `{"error":"forbidden"}`, rr.Body.String())
			}
		})
	}
}
