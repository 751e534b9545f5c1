package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsernavi/navi/internal/auth"
)

func newService(t *testing.T, now func() time.Time) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "navid",
		Now:        now,
	})
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := newService(t, nil)

	token, expiresAt, err := svc.Issue("dev_car_01", "dashboard", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "dev_car_01", claims.Subject)
	assert.Equal(t, "dashboard", claims.Client)
	assert.Equal(t, "navid", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{auth.DefaultAudience}, claims.Audience)
}

func TestTokenService_Expired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := issued
	svc := newService(t, func() time.Time { return now })

	token, _, err := svc.Issue("dev_car_01", "", time.Minute)
	require.NoError(t, err)

	now = issued.Add(2 * time.Minute)
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_Rejects(t *testing.T) {
	svc := newService(t, nil)

	other, err := auth.NewTokenService(auth.TokenConfig{SigningKey: "another-key", Issuer: "navid"})
	require.NoError(t, err)
	foreign, _, err := other.Issue("dev_car_01", "", time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := auth.NewTokenService(auth.TokenConfig{SigningKey: "test-secret-key-for-testing-only", Issuer: "elsewhere"})
	require.NoError(t, err)
	misissued, _, err := wrongIssuer.Issue("dev_car_01", "", time.Hour)
	require.NoError(t, err)

	noSubject, _, err := svc.Issue("", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
		{"wrong signing key", foreign},
		{"wrong issuer", misissued},
		{"missing subject", noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestNewTokenService_RequiresKey(t *testing.T) {
	_, err := auth.NewTokenService(auth.TokenConfig{})
	assert.ErrorIs(t, err, auth.ErrNoSigningKey)
}
