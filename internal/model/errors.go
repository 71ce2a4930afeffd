package model

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindAlreadyDecided  Kind = "already_decided"
	KindValidation      Kind = "validation"
	KindTransient       Kind = "transient_io"
)

// Error is the typed result every core operation returns on failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Msg: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

func AlreadyDecided(id string, current AppointmentStatus) *Error {
	return &Error{Kind: KindAlreadyDecided, Msg: fmt.Sprintf("appointment %s is already %s", id, current)}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Msg: op, Err: err}
}
