package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind 错误分类,决定 HTTP 状态码与客户端处理方式
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"  // 无有效身份
	KindNotFound     ErrorKind = "not_found"     // 比赛/用户不存在
	KindForbidden    ErrorKind = "forbidden"     // 非参与者,或无权执行该动作
	KindInvalidState ErrorKind = "invalid_state" // 当前状态下动作不合法
	KindConflict     ErrorKind = "conflict"      // 竞争失败: AlreadyBuzzed / AlreadyGenerated 等
	KindValidation   ErrorKind = "validation"    // 请求参数不合法
)

// MatchError 带分类的业务错误,同步返回给调用方
type MatchError struct {
	Kind    ErrorKind
	Message string
}

func (e *MatchError) Error() string {
	return e.Message
}

func newError(kind ErrorKind, format string, args ...interface{}) *MatchError {
	return &MatchError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) *MatchError {
	return newError(KindUnauthorized, format, args...)
}

func NotFound(format string, args ...interface{}) *MatchError {
	return newError(KindNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) *MatchError {
	return newError(KindForbidden, format, args...)
}

func InvalidState(format string, args ...interface{}) *MatchError {
	return newError(KindInvalidState, format, args...)
}

func Conflict(format string, args ...interface{}) *MatchError {
	return newError(KindConflict, format, args...)
}

func Validation(format string, args ...interface{}) *MatchError {
	return newError(KindValidation, format, args...)
}

// KindOf 提取错误分类,非业务错误返回空串
func KindOf(err error) ErrorKind {
	var me *MatchError
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}

// HTTPStatus 错误分类到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
