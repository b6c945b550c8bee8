// Package auth verifies bearer tokens issued by the platform's
// identity service. Token issuing, signup, and sessions live outside
// this service; only verification happens here.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const UserIDKey contextKey = "user_id"

var (
	jwtSecretOnce sync.Once
	jwtSecret     []byte
	jwtSecretErr  error
)

func jwtSecretFromEnv() ([]byte, error) {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			jwtSecretErr = errors.New("JWT_SECRET is not set")
			return
		}
		jwtSecret = []byte(secret)
	})
	return jwtSecret, jwtSecretErr
}

// Middleware validates the JWT bearer token and stores the owner's
// user ID in the request context.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
		}

		secretKey, err := jwtSecretFromEnv()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Server auth configuration error")
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secretKey, nil
		})
		if err != nil || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
		}

		sub, err := claims.GetSubject()
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token subject")
		}

		userID, err := uuid.Parse(sub)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid user ID in token")
		}

		c.Set(string(UserIDKey), userID)
		return next(c)
	}
}

// GetUserIDFromContext retrieves the authenticated owner's ID.
func GetUserIDFromContext(c echo.Context) (uuid.UUID, error) {
	val := c.Get(string(UserIDKey))
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("user ID not found in context")
	}
	return id, nil
}
