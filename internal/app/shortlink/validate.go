package shortlink

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// 校验类错误都属于客户端输入问题，HTTP 层统一映射成 400。
var (
	ErrInvalidURL  = errors.New("invalid url")
	ErrInvalidCode = errors.New("invalid code")
	ErrInvalidTTL  = errors.New("invalid ttl")
)

const (
	MaxCodeLen = 32

	MinTTLSeconds int64 = 5 * 60
	MaxTTLSeconds int64 = 30 * 24 * 60 * 60
	// DefaultTTL applies when a create request carries no ttl at all.
	DefaultTTL int64 = 7 * 24 * 60 * 60
)

var codeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// ValidateURL rejects anything that is not an absolute http(s) URL, and URLs
// pointing back at the loopback host so the service cannot be used as an open
// redirector into the local network.
func ValidateURL(raw string) error {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return fmt.Errorf("%w: must start with http:// or https://", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if host == "localhost" || strings.HasPrefix(host, "127.0.0.1") {
		return fmt.Errorf("%w: cannot point to localhost or 127.0.0.1", ErrInvalidURL)
	}
	return nil
}

// ValidateCode accepts exactly [A-Za-z0-9_-]{1,32}.
func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidCode)
	}
	if len(code) > MaxCodeLen {
		return fmt.Errorf("%w: cannot exceed %d characters", ErrInvalidCode, MaxCodeLen)
	}
	if !codeRe.MatchString(code) {
		return fmt.Errorf("%w: only letters, numbers, hyphens and underscores are allowed", ErrInvalidCode)
	}
	return nil
}

// ParseTTL converts "<n><unit>" (unit s/m/h/d, case-insensitive) to seconds.
// The result must fall inside [MinTTLSeconds, MaxTTLSeconds].
func ParseTTL(spec string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: expected <number><unit>, e.g. 1h", ErrInvalidTTL)
	}

	numPart, unit := s[:len(s)-1], s[len(s)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: bad number %q", ErrInvalidTTL, numPart)
	}

	var mult int64
	switch unit {
	case 's':
		mult = 1
	case 'm':
		mult = 60
	case 'h':
		mult = 60 * 60
	case 'd':
		mult = 24 * 60 * 60
	default:
		return 0, fmt.Errorf("%w: unknown unit %q, use s, m, h or d", ErrInvalidTTL, string(unit))
	}

	// 先判断上界再相乘，避免巨大数字溢出
	if n > MaxTTLSeconds/mult {
		return 0, fmt.Errorf("%w: must be at most %d seconds (30 days)", ErrInvalidTTL, MaxTTLSeconds)
	}
	secs := n * mult
	if secs < MinTTLSeconds {
		return 0, fmt.Errorf("%w: must be at least %d seconds (5 minutes)", ErrInvalidTTL, MinTTLSeconds)
	}
	return secs, nil
}
