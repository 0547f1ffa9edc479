package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/postpilot/postpilot-backend/pkg/config"
)

func testOpsConfig() config.OpsConfig {
	return config.OpsConfig{JWTSecret: "secret", JWTIssuer: "postpilot"}
}

func TestMintAndParseOperatorToken(t *testing.T) {
	cfg := testOpsConfig()
	now := time.Now().UTC()

	token, err := MintOperatorToken(cfg, now, time.Hour, OperatorTokenPayload{
		Subject: "oncall@postpilot",
		Scopes:  []string{ScopeScheduler},
	})
	if err != nil {
		t.Fatalf("mint operator token: %v", err)
	}

	claims, err := ParseOperatorToken(cfg, token)
	if err != nil {
		t.Fatalf("parse operator token: %v", err)
	}
	if claims.Subject != "oncall@postpilot" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if !claims.HasScope(ScopeScheduler) {
		t.Fatalf("expected scheduler scope")
	}
	if claims.HasScope("billing:admin") {
		t.Fatalf("unexpected scope match")
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be generated")
	}
}

func TestParseOperatorTokenRejectsExpired(t *testing.T) {
	cfg := testOpsConfig()
	token, err := MintOperatorToken(cfg, time.Now().Add(-2*time.Hour), time.Hour, OperatorTokenPayload{Subject: "ops"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseOperatorToken(cfg, token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseOperatorTokenRejectsWrongIssuerAndSecret(t *testing.T) {
	cfg := testOpsConfig()
	token, err := MintOperatorToken(cfg, time.Now(), time.Hour, OperatorTokenPayload{Subject: "ops"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	other := cfg
	other.JWTIssuer = "someone-else"
	if _, err := ParseOperatorToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}

	other = cfg
	other.JWTSecret = "different"
	if _, err := ParseOperatorToken(other, token); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestParseOperatorTokenRejectsNoneAlg(t *testing.T) {
	cfg := testOpsConfig()
	claims := OperatorClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    cfg.JWTIssuer,
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("build unsigned token: %v", err)
	}
	if _, err := ParseOperatorToken(cfg, unsigned); err == nil {
		t.Fatal("expected alg=none to be rejected")
	}
}

func TestMintOperatorTokenValidation(t *testing.T) {
	if _, err := MintOperatorToken(config.OpsConfig{JWTIssuer: "x"}, time.Now(), time.Hour, OperatorTokenPayload{Subject: "ops"}); err == nil {
		t.Fatal("expected missing secret to fail")
	}
	if _, err := MintOperatorToken(testOpsConfig(), time.Now(), 0, OperatorTokenPayload{Subject: "ops"}); err == nil {
		t.Fatal("expected zero ttl to fail")
	}
	if _, err := MintOperatorToken(testOpsConfig(), time.Now(), time.Hour, OperatorTokenPayload{}); err == nil {
		t.Fatal("expected missing subject to fail")
	}
}
