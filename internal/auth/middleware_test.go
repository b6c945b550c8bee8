package auth

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func runMiddleware(t *testing.T, authorization string) (*httptest.ResponseRecorder, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := Middleware(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return rec, handler(c)
}

func TestMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	// The secret is cached after first read; reset for the test run.
	jwtSecretOnce = sync.Once{}
	jwtSecret = nil
	jwtSecretErr = nil

	userID := uuid.New()
	valid := signToken(t, "test-secret", jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name          string
		authorization string
		wantStatus    int
	}{
		{"valid token", "Bearer " + valid, 0},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", jwt.MapClaims{
			"sub": userID.String(),
		}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, "test-secret", jwt.MapClaims{
			"sub": userID.String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		}), http.StatusUnauthorized},
		{"non-uuid subject", "Bearer " + signToken(t, "test-secret", jwt.MapClaims{
			"sub": "not-a-uuid",
		}), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, tt.authorization)
			if tt.wantStatus == 0 {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected HTTP error, got %v", err)
			}
			if httpErr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, httpErr.Code)
			}
		})
	}
}
