package apierr

import (
	"fmt"
	"net/http"
)

// Error carries an HTTP-mappable status alongside a stable machine code.
// Services return it so handlers can translate domain failures (missing
// record, illegal lifecycle transition) without string matching.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Conflict marks an illegal lifecycle transition (submit, review or delete
// against a record whose status forbids it).
func Conflict(code string, err error) *Error {
	return New(http.StatusConflict, code, err)
}