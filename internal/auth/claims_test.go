package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("home-assistant", ScopeControl, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "home-assistant" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "home-assistant")
	}
	if claims.Scope != ScopeControl {
		t.Errorf("Scope = %q, want %q", claims.Scope, ScopeControl)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if claims.Issuer != issuer {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, issuer)
	}
}

func TestGenerateToken_DefaultTTL(t *testing.T) {
	token, err := GenerateToken("cli", ScopeControl, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < DefaultTTL-time.Minute || remaining > DefaultTTL {
		t.Errorf("expiry in %v, want about %v", remaining, DefaultTTL)
	}
}

func TestGenerateToken_RequiresSecretAndSubject(t *testing.T) {
	if _, err := GenerateToken("cli", ScopeControl, "", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Errorf("empty secret error = %v, want ErrNoSecret", err)
	}
	if _, err := GenerateToken("", ScopeControl, testSecret, time.Hour); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty subject error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("cli", ScopeControl, "correct-secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := ParseToken(token, "wrong-secret"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "cli",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
		Scope: ScopeControl,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_WrongIssuer(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "cli",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scope: ScopeControl,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := ParseToken(token, testSecret); err == nil {
		t.Error("ParseToken() should reject a foreign issuer")
	}
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "cli",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scope: ScopeControl,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := ParseToken(token, testSecret); err == nil {
		t.Error("ParseToken() should reject alg=none")
	}
}

func TestAuthorize_Scope(t *testing.T) {
	token, err := GenerateToken("viewer", "read", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := Authorize(token, testSecret, ScopeControl); !errors.Is(err, ErrScope) {
		t.Errorf("Authorize() error = %v, want ErrScope", err)
	}

	token, err = GenerateToken("home-assistant", ScopeControl, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := Authorize(token, testSecret, ScopeControl); err != nil {
		t.Errorf("Authorize() error = %v", err)
	}
}
