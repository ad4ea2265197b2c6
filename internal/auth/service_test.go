package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/johnrirwin/orbitsafe/internal/config"
	"github.com/johnrirwin/orbitsafe/internal/testutil"
)

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:      "test-secret-key-minimum-32-chars-long",
		JWTIssuer:      "orbitsafe-test",
		JWTAudience:    "orbitsafe-api",
		AccessTokenTTL: 15 * time.Minute,
	}
}

func TestAuthError(t *testing.T) {
	err := &AuthError{Code: "invalid_token", Message: "invalid token issuer"}
	if err.Error() != "invalid token issuer" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService(testConfig(), testutil.NullLogger())

	token, err := svc.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	subject, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if subject != DefaultSubject {
		t.Errorf("subject = %q, want %q", subject, DefaultSubject)
	}

	other, err := svc.WithSubject("backend-probe").Token()
	if err != nil {
		t.Fatal(err)
	}
	if subject, _ := svc.ValidateAccessToken(other); subject != "backend-probe" {
		t.Errorf("subject = %q", subject)
	}
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	base := testConfig()
	logger := testutil.NullLogger()
	svc := NewService(base, logger)

	wrongIssuer := base
	wrongIssuer.JWTIssuer = "someone-else"
	wrongAudience := base
	wrongAudience.JWTAudience = "other-api"
	wrongSecret := base
	wrongSecret.JWTSecret = "a-completely-different-secret-value"

	expired := NewService(base, logger)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }

	tests := []struct {
		name   string
		issuer *Service
	}{
		{"wrong issuer", NewService(wrongIssuer, logger)},
		{"wrong audience", NewService(wrongAudience, logger)},
		{"wrong secret", NewService(wrongSecret, logger)},
		{"expired", expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tt.issuer.Token()
			if err != nil {
				t.Fatal(err)
			}
			_, err = svc.ValidateAccessToken(token)
			var authErr *AuthError
			if !errors.As(err, &authErr) || authErr.Code != "invalid_token" {
				t.Errorf("err = %v, want invalid_token AuthError", err)
			}
		})
	}
}

func TestValidateAccessToken_RejectsNonHMAC(t *testing.T) {
	svc := NewService(testConfig(), testutil.NullLogger())

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "x",
		"iss": "orbitsafe-test",
		"aud": "orbitsafe-api",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateAccessToken(signed); err == nil {
		t.Error("unsigned token accepted")
	}
}

func TestToken_NoSecret(t *testing.T) {
	svc := NewService(config.AuthConfig{}, testutil.NullLogger())
	if svc.Enabled() {
		t.Error("Enabled() = true without secret")
	}
	if _, err := svc.Token(); !errors.Is(err, ErrNoSecret) {
		t.Errorf("Token() error = %v, want ErrNoSecret", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc := NewService(testConfig(), testutil.NullLogger())
	mw := NewMiddleware(svc)
	token, err := svc.Token()
	if err != nil {
		t.Fatal(err)
	}

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSubject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name        string
		required    bool
		header      string
		query       string
		wantStatus  int
		wantSubject string
	}{
		{"required no token", true, "", "", http.StatusUnauthorized, ""},
		{"required bad token", true, "Bearer nope", "", http.StatusUnauthorized, ""},
		{"required header", true, "Bearer " + token, "", http.StatusNoContent, DefaultSubject},
		{"required query", true, "", token, http.StatusNoContent, DefaultSubject},
		{"optional no token", false, "", "", http.StatusNoContent, ""},
		{"optional bad token", false, "Bearer nope", "", http.StatusNoContent, ""},
		{"optional header", false, "bearer " + token, "", http.StatusNoContent, DefaultSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			target := "/api/images"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			mw.Handler(tt.required)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if seen != tt.wantSubject {
				t.Errorf("subject = %q, want %q", seen, tt.wantSubject)
			}
		})
	}
}
