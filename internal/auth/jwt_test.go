package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestHashAndCheckPassword(t *testing.T) {
	pwd := "s3cr3t-Password!"
	hash, err := HashPassword(pwd)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if err := CheckPassword(hash, pwd); err != nil {
		t.Fatalf("CheckPassword failed when password should match: %v", err)
	}

	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatal("CheckPassword succeeded when it should have failed")
	}
}

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	id := bson.NewObjectID()
	token, expiresAt, err := m.GenerateToken(id, "alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected expiry in the future, got %v", expiresAt)
	}

	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.UserID != id.Hex() {
		t.Fatalf("claims.UserID mismatch: got %s", claims.UserID)
	}
	if claims.Username != "alice" {
		t.Fatalf("claims.Username mismatch: got %s", claims.Username)
	}
}

func TestJWTManager_RejectsForeignAndExpiredTokens(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)
	other := NewJWTManager("other-secret", 5*time.Minute)

	token, _, err := other.GenerateToken(bson.NewObjectID(), "mallory")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := m.VerifyToken(token); err == nil {
		t.Fatal("VerifyToken accepted a token signed with another secret")
	}

	expired := NewJWTManager("test-secret", -time.Minute)
	token, _, err = expired.GenerateToken(bson.NewObjectID(), "late")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := m.VerifyToken(token); err == nil {
		t.Fatal("VerifyToken accepted an expired token")
	}

	if _, err := m.VerifyToken("not-a-jwt"); err == nil {
		t.Fatal("VerifyToken accepted garbage")
	}
}

func TestJWTManager_RejectsMalformedUserID(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	claims := &Claims{
		UserID: "not-hex",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := m.VerifyToken(token); err == nil {
		t.Fatal("VerifyToken accepted a non ObjectID user id")
	}
}

func TestJWTManager_Rotation(t *testing.T) {
	// create a manager with two keys and active kid "k2"
	keys := map[string]string{"k1": "secret-one", "k2": "secret-two"}
	m := NewJWTManagerFromKeys(keys, "k2", 5*time.Minute)

	id := bson.NewObjectID()

	// token created with active kid (k2)
	tkn2, _, err := m.GenerateToken(id, "rot")
	if err != nil {
		t.Fatalf("GenerateToken (k2) failed: %v", err)
	}
	if _, err := m.VerifyToken(tkn2); err != nil {
		t.Fatalf("VerifyToken (k2) failed: %v", err)
	}

	// a token issued while k1 was active
	mOld := NewJWTManagerFromKeys(keys, "k1", 5*time.Minute)
	tkn1, _, err := mOld.GenerateToken(id, "rot")
	if err != nil {
		t.Fatalf("GenerateToken (k1) failed: %v", err)
	}
	if _, err := m.VerifyToken(tkn1); err != nil {
		t.Fatalf("VerifyToken (old k1) failed: %v", err)
	}

	// once k1 is retired its tokens stop verifying
	retired := NewJWTManagerFromKeys(map[string]string{"k2": "secret-two"}, "k2", 5*time.Minute)
	if _, err := retired.VerifyToken(tkn1); err == nil {
		t.Fatal("VerifyToken accepted a token signed with a retired key")
	}
}
