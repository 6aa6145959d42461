package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewService(t *testing.T) {
	service := NewService("acct-1", "", "test-jwt-secret-for-testing-only")

	if service == nil {
		t.Fatal("NewService() returned nil")
	}
	if service.operatorHash == nil {
		t.Error("operatorHash not initialized")
	}
	if err := bcrypt.CompareHashAndPassword(service.operatorHash, []byte("password")); err != nil {
		t.Error("default operator hash should validate 'password'")
	}
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	service := NewService("acct-1", string(hash), "test-jwt-secret-for-testing-only")

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "valid password", password: "correct-horse", wantErr: false},
		{name: "invalid password", password: "wrong", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, op, err := service.Login(tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Login() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if token == "" {
				t.Error("Login() returned empty token")
			}
			if op.AccountKey != "acct-1" || op.Role != "OPERATOR" {
				t.Errorf("Login() operator = %+v", op)
			}
		})
	}
}

func TestServiceValidateToken(t *testing.T) {
	service := NewService("acct-1", "", "test-jwt-secret-for-testing-only")
	token, op, err := service.Login("password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	claims, err := service.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.AccountKey != op.AccountKey || claims.Role != op.Role {
		t.Errorf("ValidateToken() claims = %+v, want account %s", claims, op.AccountKey)
	}

	other := NewService("acct-1", "", "a-totally-different-secret")
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("ValidateToken() should reject a token signed with a different secret")
	}
}
