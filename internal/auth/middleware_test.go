package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.RegisteredClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newRouter(audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", JWTMiddleware(testSecret, audience), func(c *gin.Context) {
		userID, _ := GetUserID(c.Request.Context())
		c.String(http.StatusOK, userID)
	})
	return router
}

func TestJWTMiddleware(t *testing.T) {
	valid := jwt.RegisteredClaims{
		Subject:   "user-123",
		Audience:  jwt.ClaimStrings{"matcha"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noSubject := valid
	noSubject.Subject = ""

	tests := []struct {
		name     string
		header   string
		audience string
		status   int
		body     string
	}{
		{"valid", "Bearer " + signToken(t, valid, jwt.SigningMethodHS256, []byte(testSecret)), "matcha", http.StatusOK, "user-123"},
		{"no audience check", "Bearer " + signToken(t, valid, jwt.SigningMethodHS256, []byte(testSecret)), "", http.StatusOK, "user-123"},
		{"wrong audience", "Bearer " + signToken(t, valid, jwt.SigningMethodHS256, []byte(testSecret)), "other", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + signToken(t, expired, jwt.SigningMethodHS256, []byte(testSecret)), "", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + signToken(t, valid, jwt.SigningMethodHS256, []byte("nope")), "", http.StatusUnauthorized, ""},
		{"wrong method", "Bearer " + signToken(t, valid, jwt.SigningMethodHS512, []byte(testSecret)), "", http.StatusUnauthorized, ""},
		{"missing subject", "Bearer " + signToken(t, noSubject, jwt.SigningMethodHS256, []byte(testSecret)), "", http.StatusUnauthorized, ""},
		{"missing header", "", "", http.StatusUnauthorized, ""},
		{"basic auth", "Basic abc", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			newRouter(tt.audience).ServeHTTP(resp, req)

			if resp.Code != tt.status {
				t.Fatalf("expected status %d, got %d (%s)", tt.status, resp.Code, resp.Body.String())
			}
			if tt.body != "" && resp.Body.String() != tt.body {
				t.Fatalf("expected body %q, got %q", tt.body, resp.Body.String())
			}
		})
	}
}
