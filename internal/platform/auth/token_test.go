package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestStaticToken(t *testing.T) {
	v, err := NewStaticToken("s3cret")
	if err != nil {
		t.Fatalf("NewStaticToken: %v", err)
	}
	if err := v.Verify("s3cret"); err != nil {
		t.Fatalf("Verify(correct) = %v", err)
	}
	for _, bad := range []string{"", "s3cre", "s3cret!", "S3CRET"} {
		if err := v.Verify(bad); err != ErrInvalidToken {
			t.Fatalf("Verify(%q) = %v, want ErrInvalidToken", bad, err)
		}
	}
	if _, err := NewStaticToken(""); err == nil {
		t.Fatalf("empty token should be rejected")
	}
}

func TestBcryptToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewBcryptToken(string(hash) + "\n")
	if err != nil {
		t.Fatalf("NewBcryptToken: %v", err)
	}
	if err := v.Verify("s3cret"); err != nil {
		t.Fatalf("Verify(correct) = %v", err)
	}
	if err := v.Verify("nope"); err != ErrInvalidToken {
		t.Fatalf("Verify(wrong) = %v", err)
	}
	if _, err := NewBcryptToken("not-a-hash"); err == nil {
		t.Fatalf("malformed hash should be rejected")
	}
}

func TestBcryptTokenRemembersLastGoodToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewBcryptToken(string(hash))
	if err != nil {
		t.Fatal(err)
	}
	b := v.(*bcryptToken)
	if b.verified.Load() != nil {
		t.Fatalf("nothing verified yet")
	}
	if err := v.Verify("nope"); err != ErrInvalidToken {
		t.Fatalf("Verify(wrong) = %v", err)
	}
	if b.verified.Load() != nil {
		t.Fatalf("failed token must not be remembered")
	}
	if err := v.Verify("s3cret"); err != nil {
		t.Fatalf("Verify(correct) = %v", err)
	}
	if b.verified.Load() == nil {
		t.Fatalf("good token should be remembered")
	}

	// 哈希被破坏后只有记住的 token 还能通过，说明没有再走 bcrypt
	b.hash = []byte("broken")
	if err := v.Verify("s3cret"); err != nil {
		t.Fatalf("Verify(remembered) = %v", err)
	}
	if err := v.Verify("s3cret2"); err != ErrInvalidToken {
		t.Fatalf("Verify(other) = %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	v, err := FromConfig("", "")
	if err != nil || v != nil {
		t.Fatalf("FromConfig(empty) = %v, %v; want nil, nil", v, err)
	}
	v, err = FromConfig("tok", "")
	if err != nil || v == nil {
		t.Fatalf("FromConfig(token) = %v, %v", v, err)
	}
}
