package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier 校验共享的 Bearer token。
type TokenVerifier interface {
	Verify(token string) error
}

type staticToken struct {
	token []byte
}

// NewStaticToken compares against a plaintext secret in constant time.
func NewStaticToken(token string) (TokenVerifier, error) {
	if token == "" {
		return nil, errors.New("auth token is empty")
	}
	return &staticToken{token: []byte(token)}, nil
}

func (s *staticToken) Verify(token string) error {
	if subtle.ConstantTimeCompare([]byte(token), s.token) != 1 {
		return ErrInvalidToken
	}
	return nil
}

type bcryptToken struct {
	hash []byte
	// 上一次通过校验的 token 摘要，命中时跳过 bcrypt
	verified atomic.Pointer[[sha256.Size]byte]
}

// NewBcryptToken 只在配置里保存 bcrypt 哈希（用 cmd/tools/hashpass 生成），明文不落盘。
func NewBcryptToken(hash string) (TokenVerifier, error) {
	hash = strings.TrimSpace(hash)
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	return &bcryptToken{hash: []byte(hash)}, nil
}

func (b *bcryptToken) Verify(token string) error {
	sum := sha256.Sum256([]byte(token))
	if last := b.verified.Load(); last != nil && subtle.ConstantTimeCompare(sum[:], last[:]) == 1 {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(b.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	b.verified.Store(&sum)
	return nil
}

// FromConfig picks the verifier for the configured secret. Both empty means
// no verifier: protected routes are open.
func FromConfig(token, hash string) (TokenVerifier, error) {
	switch {
	case hash != "":
		return NewBcryptToken(hash)
	case token != "":
		return NewStaticToken(token)
	default:
		return nil, nil
	}
}
