package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind 错误类别（封闭集合）
type Kind string

const (
	KindUnsupportedFormat  Kind = "UnsupportedFormat"
	KindExtraction         Kind = "ExtractionError"
	KindInvalidConfig      Kind = "InvalidConfig"
	KindEmbedding          Kind = "EmbeddingError"
	KindAuthentication     Kind = "AuthenticationError"
	KindQuotaOrRequest     Kind = "QuotaOrRequestError"
	KindServiceUnavailable Kind = "ServiceUnavailable"
	KindCancelled          Kind = "Cancelled"
	KindEmptyResult        Kind = "EmptyResult"
	KindInternal           Kind = "Internal"
)

// Kinds 返回全部错误类别
func Kinds() []Kind {
	return []Kind{
		KindUnsupportedFormat,
		KindExtraction,
		KindInvalidConfig,
		KindEmbedding,
		KindAuthentication,
		KindQuotaOrRequest,
		KindServiceUnavailable,
		KindCancelled,
		KindEmptyResult,
		KindInternal,
	}
}

// Error 流水线错误结构体
type Error struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Stage     string `json:"stage,omitempty"`
	Retryable bool   `json:"-"`
	Cause     error  `json:"-"`
}

// Error 实现error接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause 添加错误原因
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStage 记录出错阶段
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// AsRetryable 标记为可重试
func (e *Error) AsRetryable() *Error {
	e.Retryable = true
	return e
}

// New 创建错误
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: kind == KindServiceUnavailable || kind == KindEmptyResult,
	}
}

// Newf 创建格式化错误
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap 包装底层错误
func Wrap(kind Kind, message string, cause error) *Error {
	return New(kind, message).WithCause(cause)
}

// As 提取*Error
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 获取错误类别，非*Error一律视为Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// Is 判断错误类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable 检查错误是否可重试
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}

// FromContext 将context错误转换为Cancelled
func FromContext(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok && e.Kind == KindCancelled {
		return e
	}
	return Wrap(KindCancelled, "operation cancelled", err)
}

// Ensure 将任意错误转换为*Error，未分类错误归为fallback
func Ensure(err error, fallback Kind, message string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return FromContext(err)
	}
	return Wrap(fallback, message, err)
}

// HTTPStatus 根据错误类别获取HTTP状态码
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidConfig, KindQuotaOrRequest:
		return http.StatusBadRequest
	case KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case KindExtraction:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindServiceUnavailable, KindEmbedding:
		return http.StatusServiceUnavailable
	case KindEmptyResult:
		return http.StatusGatewayTimeout
	case KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
