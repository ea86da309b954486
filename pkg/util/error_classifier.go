package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"mail-summary-service/pkg/circuitbreaker"
)

// TypedError 由业务错误实现，用来声明自身的 error_type
type TypedError interface {
	error
	ErrorType() string
}

// ClassifyError maps an error to a stable error_type label for logs and metrics.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	// 业务错误自带类型，优先使用
	var typed TypedError
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}

	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return "circuit_open"
	}

	// Context timeout
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "context_canceled"
	}

	// JSON decode errors（模型返回格式错误）
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "invalid_response"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return "invalid_response"
	}

	// Network errors（*url.Error 也实现了 net.Error）
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network_error"
	}

	if strings.Contains(err.Error(), "connection refused") {
		return "network_error"
	}

	// 默认：未知错误
	return "unknown_error"
}
