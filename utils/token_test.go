package utils

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims PushClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJwtValidate(t *testing.T) {
	secret := []byte("s3cret")
	valid := PushClaims{CompanyCode: "DTC1", StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Minute).Unix()}}

	claims, err := JwtValidate(sign(t, jwt.SigningMethodHS256, secret, valid), secret)
	if err != nil || claims.CompanyCode != "DTC1" {
		t.Fatalf("claims=%+v err=%v", claims, err)
	}

	expired := valid
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if _, err := JwtValidate(sign(t, jwt.SigningMethodHS256, secret, expired), secret); err == nil {
		t.Fatal("expired token accepted")
	}
	if _, err := JwtValidate(sign(t, jwt.SigningMethodHS256, []byte("other"), valid), secret); err == nil {
		t.Fatal("foreign signature accepted")
	}
	if _, err := JwtValidate(sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid), secret); err == nil {
		t.Fatal("unsigned token accepted")
	}
	if _, err := JwtValidate("anything", nil); err == nil {
		t.Fatal("empty secret accepted")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for in, want := range cases {
		if got := BearerToken(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}
