package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken("alice", RoleOperator, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", claims.Subject)
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("JTI should not be empty")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Errorf("lifetime = %v, want 1h", got)
	}
}

func TestIssueToken_DefaultTTL(t *testing.T) {
	token, err := IssueToken("alice", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != DefaultTokenTTL {
		t.Errorf("lifetime = %v, want %v", got, DefaultTokenTTL)
	}
}

func TestIssueToken_Rejects(t *testing.T) {
	if _, err := IssueToken("alice", RoleViewer, "short", time.Hour); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("short secret error = %v", err)
	}
	if _, err := IssueToken("", RoleViewer, testSecret, time.Hour); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty subject error = %v", err)
	}
	if _, err := IssueToken("alice", Role("root"), testSecret, time.Hour); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("bad role error = %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := IssueToken("alice", RoleViewer, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(token, testSecret+"x"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() with wrong secret error = %v", err)
	}
}

func TestParseToken_Garbage(t *testing.T) {
	if _, err := ParseToken("not-a-valid-jwt", testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v", err)
	}
}

func signRaw(t *testing.T, claims Claims, method jwt.SigningMethod) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return s
}

func TestParseToken_Expired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	token := signRaw(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
		Role: RoleViewer,
	}, jwt.SigningMethodHS256)

	if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expired token error = %v", err)
	}
}

func TestParseToken_ClaimChecks(t *testing.T) {
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tests := []struct {
		name   string
		claims Claims
		method jwt.SigningMethod
	}{
		{"wrong issuer", Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "other", Subject: "a", ExpiresAt: exp}, Role: RoleViewer}, jwt.SigningMethodHS256},
		{"no expiry", Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "a"}, Role: RoleViewer}, jwt.SigningMethodHS256},
		{"no subject", Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: exp}, Role: RoleViewer}, jwt.SigningMethodHS256},
		{"unknown role", Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "a", ExpiresAt: exp}, Role: "root"}, jwt.SigningMethodHS256},
		{"wrong algorithm", Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "a", ExpiresAt: exp}, Role: RoleViewer}, jwt.SigningMethodHS512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signRaw(t, tt.claims, tt.method)
			if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
