// Package apperr はサービス層からHTTP層へ返すエラーの分類を提供する。
//
// ハンドラはCodeを見てステータスコードを決める。Causeは内部ログ用であり、
// クライアントには返さない。
package apperr

import (
	"errors"
	"fmt"
)

// Code はエラーの分類を表す。
type Code string

const (
	// CodeUnauthenticated は認証情報が必要なのに存在しないことを表す。
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	// CodeAlreadyExists は一意性制約の違反（名前の重複など）を表す。
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	// CodePermissionDenied は所有者以外による変更を表す。
	CodePermissionDenied Code = "PERMISSION_DENIED"
	// CodeInvalidArgument はリクエストの形式不正を表す。
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeNotFound は対象が存在しないことを表す。
	CodeNotFound Code = "NOT_FOUND"
	// CodeInternal は想定外の内部エラーを表す。
	CodeInternal Code = "INTERNAL"
)

// AppError はコードとクライアント向けメッセージを持つエラー。
type AppError struct {
	// Code はエラーの分類。
	Code Code
	// Message はクライアントに返してよいメッセージ。
	Message string
	// Cause は元になった内部エラー。
	Cause error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is はコードが一致するAppError同士を同一とみなす。
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
}

// New は新しいAppErrorを生成する。
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

// Wrap は内部エラーを原因として持つAppErrorを生成する。
func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Unauthorized は認証が必要な操作で未認証であることを表すエラーを生成する。
func Unauthorized(msg string) error { return New(CodeUnauthenticated, msg) }

// Conflict は一意であるべき値が既に使われていることを表すエラーを生成する。
func Conflict(msg string) error { return New(CodeAlreadyExists, msg) }

// Forbidden は操作の権限が無いことを表すエラーを生成する。
func Forbidden(msg string) error { return New(CodePermissionDenied, msg) }

// InvalidArg は入力値が不正であることを表すエラーを生成する。
func InvalidArg(msg string) error { return New(CodeInvalidArgument, msg) }

// NotFound は対象が存在しないことを表すエラーを生成する。
func NotFound(msg string) error { return New(CodeNotFound, msg) }

// Internal は原因を隠したまま内部エラーとして包む。
func Internal(cause error) error {
	return Wrap(CodeInternal, "SERVER ERROR", cause)
}

// CodeOf はerrのコードを返す。AppErrorでない場合はCodeInternalを返す。
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// MessageOf はクライアントに返すメッセージを返す。
// AppErrorでない場合は内部の詳細を隠した固定文言になる。
func MessageOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) && ae.Code != CodeInternal {
		return ae.Message
	}
	return "SERVER ERROR"
}
