package auth

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	secret := []byte("test-secret")
	token, expiresAt, err := Issue(secret, "per_1", "b404", "jti-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected expiry in the future, got %v", expiresAt)
	}
	if !Validate(secret, token) {
		t.Fatalf("expected freshly issued token to validate")
	}

	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "per_1" {
		t.Fatalf("Sub = %q, want per_1", claims.Sub)
	}
	if claims.Iss != "b404" {
		t.Fatalf("Iss = %q, want b404", claims.Iss)
	}
	if claims.Iat == 0 || claims.Exp <= claims.Iat {
		t.Fatalf("expected exp > iat > 0, got iat=%d exp=%d", claims.Iat, claims.Exp)
	}
	if got := SubjectOf(token); got != "per_1" {
		t.Fatalf("SubjectOf() = %q, want per_1", got)
	}
}

func TestExpiredTokenFailsValidate(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, Claims{
		Sub: "per_1",
		Iss: "b404",
		Iat: time.Now().Add(-2 * time.Hour).Unix(),
		Exp: time.Now().Add(-time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if Validate(secret, token) {
		t.Fatalf("expected expired token to fail validation")
	}
	if _, err := ParseToken(secret, token); err != ErrExpiredToken {
		t.Fatalf("ParseToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestTamperedSignatureFailsValidate(t *testing.T) {
	secret := []byte("test-secret")
	token, _, err := Issue(secret, "per_1", "b404", "jti-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + "A" + parts[1][1:]
	if tampered == token {
		tampered = parts[0] + "." + "B" + parts[1][1:]
	}
	if Validate(secret, tampered) {
		t.Fatalf("expected tampered token to fail validation")
	}
	if Validate([]byte("other-secret"), token) {
		t.Fatalf("expected token signed with a different key to fail validation")
	}
}

func TestMalformedTokensReturnFalse(t *testing.T) {
	secret := []byte("test-secret")
	for _, raw := range []string{"", "garbage", "a.b.c", "not-base64.!!!", "."} {
		if Validate(secret, raw) {
			t.Fatalf("expected %q to fail validation", raw)
		}
	}
}
