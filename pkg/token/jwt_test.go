package token

import "testing"

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 1)
	tok, err := m.GenerateToken("U1", "USER")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := m.VerifyToken(tok)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != "U1" || claims.Role != "USER" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	tok, err := NewJWTManager("one", 1).GenerateToken("U1", "USER")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := NewJWTManager("two", 1).VerifyToken(tok); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", -1)
	tok, err := m.GenerateToken("U1", "USER")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := m.VerifyToken(tok); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
