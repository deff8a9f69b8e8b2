package chat

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует ошибки движка для обработчиков:
// всё, кроме аутентификации, конвертируется в event "error" только отправителю.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindNotFound       ErrorKind = "not_found"
	KindInvalidState   ErrorKind = "invalid_state"
	KindValidation     ErrorKind = "validation"
	KindDependency     ErrorKind = "dependency"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Forbidden(msg string) *Error    { return &Error{Kind: KindAuthorization, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func InvalidState(msg string) *Error { return &Error{Kind: KindInvalidState, Message: msg} }
func Invalid(msg string) *Error      { return &Error{Kind: KindValidation, Message: msg} }

func Dependency(msg string, err error) *Error {
	return &Error{Kind: KindDependency, Message: msg, Err: err}
}

// KindOf возвращает вид ошибки; незнакомые ошибки считаются отказом зависимости
func KindOf(err error) ErrorKind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindDependency
}
