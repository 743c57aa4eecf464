package auth

import (
	"testing"
	"time"
)

func newTestService(t *testing.T) *AuthService {
	t.Helper()
	svc, err := NewAuthService("test-secret", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.GenerateTokenPair(42)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	access, err := svc.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if access.UserID != 42 {
		t.Errorf("access user id = %d, want 42", access.UserID)
	}
	if access.TokenType != "access" {
		t.Errorf("access token type = %q", access.TokenType)
	}

	refresh, err := svc.ValidateToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh token: %v", err)
	}
	if refresh.TokenType != "refresh" {
		t.Errorf("refresh token type = %q", refresh.TokenType)
	}
	if refresh.ID == "" {
		t.Error("refresh token missing jti")
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	svc := newTestService(t)
	other, err := NewAuthService("other-secret", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}

	pair, err := other.GenerateTokenPair(7)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	if _, err := svc.ValidateToken(pair.AccessToken); err == nil {
		t.Fatal("expected validation failure for token signed with another secret")
	}
}

func TestValidateTokenRejectsEmpty(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.ValidateToken(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal plaintext")
	}
	if !CheckPasswordHash("correct horse battery staple", hash) {
		t.Error("correct password rejected")
	}
	if CheckPasswordHash("wrong password", hash) {
		t.Error("wrong password accepted")
	}
}
