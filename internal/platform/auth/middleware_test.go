package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "dedup-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: roles,
	}
}

func runAuth(t *testing.T, mw echo.MiddlewareFunc, header string) (echo.Context, error, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	err := mw(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	})(c)
	return c, err, called
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err, called := runAuth(t, JWTMiddleware(JWTConfig{Secret: testSecret}), "")
	assertStatus(t, err, http.StatusUnauthorized)
	if called {
		t.Error("handler should not be called")
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err, _ := runAuth(t, JWTMiddleware(JWTConfig{Secret: testSecret}), tt.header)
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, validClaims(RoleDataSteward), testSecret)

	c, err, called := runAuth(t, JWTMiddleware(JWTConfig{Secret: testSecret, Issuer: "dedup-test"}), "Bearer "+tokenStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to be called")
	}

	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != "user-123" {
		t.Errorf("expected user-123, got %q", got)
	}
	if got := RolesFromContext(ctx); !reflect.DeepEqual(got, []string{RoleDataSteward}) {
		t.Errorf("expected [data_steward], got %v", got)
	}
}

func TestJWTMiddleware_Rejected(t *testing.T) {
	expired := validClaims(RoleAdmin)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))

	noExpiry := validClaims(RoleAdmin)
	noExpiry.ExpiresAt = nil

	otherIssuer := validClaims(RoleAdmin)
	otherIssuer.Issuer = "someone-else"

	tests := []struct {
		name  string
		token string
	}{
		{"expired", createTestToken(t, expired, testSecret)},
		{"no expiry", createTestToken(t, noExpiry, testSecret)},
		{"wrong issuer", createTestToken(t, otherIssuer, testSecret)},
		{"wrong secret", createTestToken(t, validClaims(RoleAdmin), []byte("another-secret-another-secret-xx"))},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err, called := runAuth(t, JWTMiddleware(JWTConfig{Secret: testSecret, Issuer: "dedup-test"}), "Bearer "+tt.token)
			assertStatus(t, err, http.StatusUnauthorized)
			if called {
				t.Error("handler should not be called")
			}
		})
	}
}

func TestJWTMiddleware_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(RoleAdmin))
	tokenStr, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err, _ = runAuth(t, JWTMiddleware(JWTConfig{Secret: testSecret}), "Bearer "+tokenStr)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	c, err, called := runAuth(t, DevAuthMiddleware(JWTConfig{}), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to be called")
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "dev-user" {
		t.Errorf("expected dev-user, got %q", UserIDFromContext(ctx))
	}
	if !HasRole(RolesFromContext(ctx), RoleDataSteward) {
		t.Error("expected dev user to pass role checks")
	}
}

func TestDevAuthMiddleware_ValidatesProvidedToken(t *testing.T) {
	mw := DevAuthMiddleware(JWTConfig{Secret: testSecret})

	_, err, _ := runAuth(t, mw, "Bearer not.a.jwt")
	assertStatus(t, err, http.StatusUnauthorized)

	tokenStr := createTestToken(t, validClaims(RoleViewer), testSecret)
	c, err, called := runAuth(t, mw, "Bearer "+tokenStr)
	if err != nil || !called {
		t.Fatalf("expected valid token to pass, err=%v called=%v", err, called)
	}
	if got := RolesFromContext(c.Request().Context()); !reflect.DeepEqual(got, []string{RoleViewer}) {
		t.Errorf("expected token roles, got %v", got)
	}
}
