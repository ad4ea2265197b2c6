package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/johnrirwin/orbitsafe/internal/config"
	"github.com/johnrirwin/orbitsafe/internal/logging"
)

// DefaultSubject identifies the orbitsafe client when it mints its own tokens.
const DefaultSubject = "orbitsafe-client"

// ErrNoSecret is returned when tokens are requested without a signing secret.
var ErrNoSecret = errors.New("auth: jwt secret not configured")

// Service issues and validates HS256 bearer tokens shared between the
// orbitsafe client and the record backend.
type Service struct {
	config  config.AuthConfig
	subject string
	logger  *logging.Logger
	now     func() time.Time
}

// NewService creates a new auth service
func NewService(cfg config.AuthConfig, logger *logging.Logger) *Service {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	return &Service{
		config:  cfg,
		subject: DefaultSubject,
		logger:  logger,
		now:     time.Now,
	}
}

// WithSubject returns a copy of the service that signs tokens for subject.
func (s *Service) WithSubject(subject string) *Service {
	cp := *s
	cp.subject = subject
	return &cp
}

// Enabled reports whether a signing secret is configured.
func (s *Service) Enabled() bool {
	return s.config.JWTSecret != ""
}

// Token mints a fresh access token for the configured subject.
func (s *Service) Token() (string, error) {
	return s.IssueToken(s.subject)
}

// IssueToken signs an access token for subject.
func (s *Service) IssueToken(subject string) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": s.config.JWTIssuer,
		"aud": s.config.JWTAudience,
		"iat": now.Unix(),
		"exp": now.Add(s.config.AccessTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken validates a JWT access token and returns its subject
func (s *Service) ValidateAccessToken(tokenString string) (string, error) {
	if !s.Enabled() {
		return "", &AuthError{Code: "not_configured", Message: "token validation is not configured"}
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		s.logger.Debug("Rejected access token", logging.WithField("error", err.Error()))
		return "", &AuthError{Code: "invalid_token", Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token claims"}
	}

	if iss, _ := claims["iss"].(string); iss != s.config.JWTIssuer {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token issuer"}
	}
	if aud, _ := claims["aud"].(string); aud != s.config.JWTAudience {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token audience"}
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token subject"}
	}

	return subject, nil
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return e.Message
}
