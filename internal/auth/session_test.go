package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSigningSecret = "secret"
	testIssuer        = "ideaflow"
	testUserID        = "user-123"
)

func newTestValidator(t *testing.T, now *time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(Config{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		TokenTTL:      time.Hour,
		Clock: func() time.Time {
			return *now
		},
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func TestNewSessionValidator_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "missing secret", cfg: Config{Issuer: testIssuer}, want: ErrMissingSigningKey},
		{name: "missing issuer", cfg: Config{SigningSecret: []byte(testSigningSecret)}, want: ErrMissingIssuer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSessionValidator(tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewSessionValidator() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSessionValidator_IssueAndValidate(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, &now)

	signed, expiresAt, err := validator.Issue(testUserID, "Ada")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, now.Add(time.Hour))
	}

	claims, err := validator.ValidateToken(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.UserID != testUserID {
		t.Errorf("claims.UserID = %q, want %q", claims.UserID, testUserID)
	}
	if claims.UserDisplayName != "Ada" {
		t.Errorf("claims.UserDisplayName = %q, want %q", claims.UserDisplayName, "Ada")
	}

	now = now.Add(2 * time.Hour)
	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("ValidateToken() after expiry error = %v, want ErrExpiredToken", err)
	}
}

func TestSessionValidator_RejectsForeignTokens(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, &now)

	sign := func(secret, issuer string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
			UserID: testUserID,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Subject:   testUserID,
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		signed, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return signed
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "  ", want: ErrMissingToken},
		{name: "garbage", token: "not-a-jwt", want: ErrInvalidToken},
		{name: "wrong secret", token: sign("other", testIssuer), want: ErrInvalidToken},
		{name: "wrong issuer", token: sign(testSigningSecret, "someone-else"), want: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateToken(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSessionValidator_ValidateRequest(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, &now)
	signed, _, err := validator.Issue(testUserID, "")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	bearer := httptest.NewRequest(http.MethodGet, "/", nil)
	bearer.Header.Set("Authorization", "Bearer "+signed)
	if claims, err := validator.ValidateRequest(bearer); err != nil || claims.UserID != testUserID {
		t.Errorf("ValidateRequest(bearer) = %v, %v", claims.UserID, err)
	}

	cookie := httptest.NewRequest(http.MethodGet, "/", nil)
	cookie.AddCookie(&http.Cookie{Name: CookieName, Value: signed})
	if claims, err := validator.ValidateRequest(cookie); err != nil || claims.UserID != testUserID {
		t.Errorf("ValidateRequest(cookie) = %v, %v", claims.UserID, err)
	}

	basic := httptest.NewRequest(http.MethodGet, "/", nil)
	basic.Header.Set("Authorization", "Basic abc")
	if _, err := validator.ValidateRequest(basic); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateRequest(basic) error = %v, want ErrInvalidToken", err)
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := validator.ValidateRequest(anonymous); !errors.Is(err, ErrMissingToken) {
		t.Errorf("ValidateRequest(anonymous) error = %v, want ErrMissingToken", err)
	}
}
