package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode 定义错误代码类型
type ErrorCode string

// 错误代码常量
const (
	// 通用错误
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnsupported  ErrorCode = "UNSUPPORTED"

	// 缓存错误
	ErrCodeCacheMiss ErrorCode = "CACHE_MISS"

	// 行情源错误
	ErrCodeProviderUnconfigured ErrorCode = "PROVIDER_UNCONFIGURED"
	ErrCodeUpstreamFetch        ErrorCode = "UPSTREAM_FETCH_FAILED"
	ErrCodeUpstreamTimeout      ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamInvalidData  ErrorCode = "UPSTREAM_INVALID_DATA"
	ErrCodeUpstreamRateLimit    ErrorCode = "UPSTREAM_RATE_LIMIT"

	// 持久化错误
	ErrCodePersistence ErrorCode = "PERSISTENCE_FAILED"
)

// ErrorSeverity 定义错误严重程度
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// Sentinels for errors.Is checks.
var (
	ErrProviderUnconfigured = stderrors.New("provider not configured")
	ErrUnsupported          = stderrors.New("operation not supported by provider")
)

// AppError 应用错误结构
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeCacheMiss:
		return http.StatusNotFound
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeProviderUnconfigured, ErrCodeUpstreamFetch, ErrCodeUpstreamInvalidData:
		return http.StatusServiceUnavailable
	case ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeUpstreamRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError 创建新的应用错误
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  getSeverityByCode(code),
		Timestamp: time.Now(),
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// NewAppErrorWithDetails 创建带详细信息的应用错误
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	err := NewAppError(code, message, cause)
	err.Details = details
	return err
}

// WithContext 添加上下文信息
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// getSeverityByCode 根据错误代码确定严重程度
func getSeverityByCode(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrCodeInternal:
		return SeverityCritical
	case ErrCodePersistence:
		return SeverityHigh
	case ErrCodeUpstreamFetch, ErrCodeUpstreamTimeout, ErrCodeUpstreamInvalidData, ErrCodeUpstreamRateLimit:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IsRetryable 判断错误是否可重试
func (e *AppError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeUpstreamFetch, ErrCodeUpstreamTimeout, ErrCodeUpstreamRateLimit, ErrCodePersistence:
		return true
	default:
		return false
	}
}

// Upstream wraps a provider failure. Deadline errors become UPSTREAM_TIMEOUT.
func Upstream(provider, op string, cause error) *AppError {
	code := ErrCodeUpstreamFetch
	if stderrors.Is(cause, context.DeadlineExceeded) {
		code = ErrCodeUpstreamTimeout
	}
	return NewAppError(code, fmt.Sprintf("%s %s failed", provider, op), cause).
		WithContext("provider", provider).
		WithContext("op", op)
}

// Unconfigured reports that a provider branch was skipped for lack of credentials.
func Unconfigured(provider string) *AppError {
	return NewAppError(ErrCodeProviderUnconfigured, provider+" credentials not configured", ErrProviderUnconfigured).
		WithContext("provider", provider)
}

// Unsupported reports an operation the provider cannot serve.
func Unsupported(provider, op string) *AppError {
	return NewAppError(ErrCodeUnsupported, fmt.Sprintf("%s does not support %s", provider, op), ErrUnsupported).
		WithContext("provider", provider)
}

// WrapError 包装标准错误为应用错误
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return NewAppError(code, message, err)
}

// IsAppError 检查是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf returns the AppError code carried by err, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is 与 As 转发标准库，避免调用方同时导入两个 errors 包
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
