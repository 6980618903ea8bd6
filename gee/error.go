package gee

// ErrorResponse 是所有错误响应的统一 JSON 形状：{"error": "...", "request_id": "..."}
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"` // 没有就不输出
}

func NewErrorResponse(c *Context, message string) ErrorResponse {
	return ErrorResponse{
		Error:     message,
		RequestID: c.Req.Header.Get("X-Request-ID"),
	}
}
