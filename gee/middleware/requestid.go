package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"cutl.local/gee"
)

const requestIDHeader = "X-Request-ID"

// 客户端传来的 id 超过这个长度就重新生成，避免日志被撑爆
const maxRequestIDLen = 128

func ReqID() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id := ctx.Req.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = GenerateReqID()
			ctx.Req.Header.Set(requestIDHeader, id)
		}
		ctx.SetHeader(requestIDHeader, id)

		ctx.Next()
	}
}

// GenerateReqID 返回 32 个十六进制字符；随机源失败时退回纳秒时间戳
func GenerateReqID() string {
	src := make([]byte, 16)
	if _, err := rand.Read(src); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(src)
}
