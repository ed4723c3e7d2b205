package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// 网络错误代码
const (
	CodeTimeout     = "ETIMEDOUT"
	CodeUnreachable = "ENETUNREACH"
	CodeReset       = "ECONNRESET"
	CodeRefused     = "ECONNREFUSED"
	CodeNoResponse  = "ENORESPONSE"
)

// NetworkError 网络类失败（超时/重置/拒绝/不可达/无响应），重试耗尽后返回
type NetworkError struct {
	Code     string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("网络错误 %s (尝试 %d 次): %v", e.Code, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError 有响应的 HTTP 错误，不重试
type HTTPError struct {
	URL        string
	Status     int
	StatusText string
	Body       []byte
}

func (e *HTTPError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP 错误 %d %s: %s", e.Status, e.StatusText, body)
}

// IsNetworkError 判断 err 是否为网络类失败
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// AsNetworkError 把传输层错误包装为 NetworkError
func AsNetworkError(err error, attempts int) *NetworkError {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne
	}
	return &NetworkError{Code: networkCode(err), Attempts: attempts, Err: err}
}

// networkCode 把传输层错误归类为网络错误代码。
// 没有拿到响应的错误都算网络类。
func networkCode(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return CodeReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeRefused
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return CodeUnreachable
	case errors.Is(err, syscall.ETIMEDOUT), errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return CodeTimeout
	}
	return CodeNoResponse
}
