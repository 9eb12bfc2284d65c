package security

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret-pass") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected wrong password to fail")
	}
	if CheckPassword("", "s3cret-pass") {
		t.Fatalf("expected empty hash to fail")
	}
}

func TestUserToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := IssueUserToken("secret", 42, "SUPPLIER", time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := ParseUserToken("secret", token, func() time.Time { return now.Add(30 * time.Minute) })
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "SUPPLIER" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := ParseUserToken("other", token, func() time.Time { return now }); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := ParseUserToken("secret", token, func() time.Time { return now.Add(2 * time.Hour) }); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
	if _, err := IssueUserToken("", 1, "MEMBER", time.Hour, now); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestOTP(t *testing.T) {
	secret, err := NewOTPSecret("user@example.com")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code, err := OTPCode(secret, issued)
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	if !ValidateOTP(code, secret, issued.Add(9*time.Minute)) {
		t.Fatalf("expected code to be valid within the period")
	}
	if ValidateOTP(code, secret, issued.Add(time.Hour)) {
		t.Fatalf("expected code to expire")
	}
	if ValidateOTP("000000x", secret, issued) {
		t.Fatalf("expected malformed code to fail")
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("refresh-a")
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a != HashToken("refresh-a") {
		t.Fatalf("expected stable digest")
	}
	if a == HashToken("refresh-b") {
		t.Fatalf("expected distinct digests")
	}
}
