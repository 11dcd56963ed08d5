package jwt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pet-custody-escrow/internal/ports/auth"
)

const (
	testSecret = "super-secret"
	testIssuer = "pce-identity"
)

func signToken(t *testing.T, secret string, claims tokenClaims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func baseClaims(role string) tokenClaims {
	return tokenClaims{
		Email: "ana@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerify_ValidToken(t *testing.T) {
	v := NewVerifier(testSecret, testIssuer)

	got, err := v.Verify(context.Background(), signToken(t, testSecret, baseClaims("SHELTER")))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.UserID != "u-1" || got.Email != "ana@example.com" || got.Role != auth.RoleShelter {
		t.Fatalf("unexpected claims: %+v", got)
	}
}

func TestVerify_EmptyRoleDefaultsToUser(t *testing.T) {
	v := NewVerifier(testSecret, testIssuer)

	got, err := v.Verify(context.Background(), signToken(t, testSecret, baseClaims("")))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Role != auth.RoleUser {
		t.Fatalf("expected default role USER, got %s", got.Role)
	}
}

func TestVerify_Rejections(t *testing.T) {
	v := NewVerifier(testSecret, testIssuer)

	expired := baseClaims("USER")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongIssuer := baseClaims("USER")
	wrongIssuer.Issuer = "someone-else"

	noSubject := baseClaims("USER")
	noSubject.Subject = ""

	cases := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "other-secret", baseClaims("USER"))},
		{"expired", signToken(t, testSecret, expired)},
		{"wrong issuer", signToken(t, testSecret, wrongIssuer)},
		{"unknown role", signToken(t, testSecret, baseClaims("SUPERADMIN"))},
		{"missing subject", signToken(t, testSecret, noSubject)},
		{"garbage", "not.a.token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestVerify_RejectsUnsignedAlg(t *testing.T) {
	v := NewVerifier(testSecret, testIssuer)

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, baseClaims("USER"))
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	if _, err := v.Verify(context.Background(), s); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg=none, got %v", err)
	}
}
