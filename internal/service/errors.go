package service

import (
	"errors"
	"strings"
)

var (
	// ErrUsernameTaken is matched by ValidationErrors that contain a
	// CodeUsernameTaken entry.
	ErrUsernameTaken = errors.New("user is already registered")
	// ErrUserNotFound indicates that no user has the given username.
	ErrUserNotFound = errors.New("user not found")
	// ErrBadCredentials indicates that the password does not match.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrNovelNotFound is returned for unknown novel ids.
	ErrNovelNotFound = errors.New("novel not found")
	// ErrUnauthorized is returned when the requesting user may not act on a novel.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPersistence wraps storage faults below the service boundary.
	ErrPersistence = errors.New("persistence failure")
	// ErrCoverUpload is returned when an accepted cover could not be written.
	ErrCoverUpload = errors.New("cover upload failed")
)

type ValidationCode string

const (
	CodeMissingFields    ValidationCode = "missing_fields"
	CodePasswordMismatch ValidationCode = "password_mismatch"
	CodePasswordTooShort ValidationCode = "password_too_short"
	CodeUsernameTaken    ValidationCode = "username_taken"
)

// ValidationError is one user-correctable problem with submitted input.
type ValidationError struct {
	Code    ValidationCode `json:"code"`
	Message string         `json:"msg"`
}

// ValidationErrors collects every violated rule of a submission.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether code is among the errors.
func (v ValidationErrors) Has(code ValidationCode) bool {
	for _, e := range v {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrUsernameTaken && v.Has(CodeUsernameTaken)
}
