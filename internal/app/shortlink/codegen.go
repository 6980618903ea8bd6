package shortlink

import (
	"crypto/rand"
	"math/big"
)

// 62 个符号：数字 + 大写 + 小写。生成的短码必然满足 ValidateCode。
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	minGeneratedLen = 6
	maxGeneratedLen = 8
)

// GenerateCode returns a random code of length 6, 7 or 8 (uniformly chosen),
// each character drawn uniformly from the 62-symbol alphabet.
//
// It says nothing about uniqueness; callers check the store.
func GenerateCode() string {
	n := minGeneratedLen + randIntn(maxGeneratedLen-minGeneratedLen+1)
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[randIntn(len(alphabet))]
	}
	return string(buf)
}

// randIntn 用 crypto/rand 取 [0,n) 的均匀随机数（rand.Int 内部做了拒绝采样，没有取模偏差）。
func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand 在受支持的平台上不会失败
		panic("shortlink: crypto/rand failed: " + err.Error())
	}
	return int(v.Int64())
}
