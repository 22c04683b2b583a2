// Package apperr defines the error taxonomy shared by the domain services.
//
// Every error a service returns to its caller is either nil or wraps an
// *Error, so callers branch on Kind (or on a package-level sentinel via
// errors.Is) instead of matching strings.
package apperr

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindBusinessRule  Kind = "business_rule"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindPersistence   Kind = "persistence"
)

type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithMessage returns a copy carrying msg; errors.Is still matches the original.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// Wrap returns a copy with err as its cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func BusinessRule(code, msg string) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: msg}
}

func Forbidden(code, msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

var (
	ErrLockTimeout = &Error{Kind: KindPersistence, Code: "lock_timeout", Message: "timed out waiting for a row lock", Retryable: true}
	ErrConflict    = &Error{Kind: KindPersistence, Code: "serialization_conflict", Message: "concurrent update conflict", Retryable: true}
	ErrDuplicate   = &Error{Kind: KindBusinessRule, Code: "duplicate", Message: "record already exists"}
	ErrPersistence = &Error{Kind: KindPersistence, Code: "persistence_error", Message: "storage failure"}
)

// Persistence classifies a storage error. An error that already carries a
// Kind is returned unchanged.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrLockTimeout.Wrap(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return ErrLockTimeout.Wrap(err)
		case "40001", "40P01":
			return ErrConflict.Wrap(err)
		case "23505":
			return ErrDuplicate.Wrap(err)
		}
		return ErrPersistence.Wrap(err)
	}

	if IsUniqueConstraint(err) {
		return ErrDuplicate.Wrap(err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy") {
		return ErrLockTimeout.Wrap(err)
	}
	return ErrPersistence.Wrap(err)
}

func IsUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "unique failed")
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsRetryable(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Retryable
}
