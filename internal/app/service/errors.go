package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUsernameTaken signals that another pay link already owns the username.
	ErrUsernameTaken = errors.New("username already exists, try a different one")
	// ErrInvalidUsername signals a username that is not a valid lightning address local part.
	ErrInvalidUsername = errors.New("invalid username, only letters a-z, numbers 0-9 and -_. are allowed")
	// ErrValidation wraps request field violations.
	ErrValidation = errors.New("validation failed")
	// ErrIntegrity signals that storage lost a record it just acknowledged.
	ErrIntegrity = errors.New("storage integrity violation")
	// ErrSettingsIO signals a failure reading or writing the relay list file.
	ErrSettingsIO = errors.New("settings file i/o failed")
	// ErrIDExhausted signals that no free short id was found.
	ErrIDExhausted = errors.New("could not allocate a unique pay link id")
)

// ProtocolError is an LNURL error: it travels to the wallet as a
// {"status":"ERROR"} payload with a successful HTTP status.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return e.Reason }

// Response renders the LNURL error payload.
func (e *ProtocolError) Response() ErrorResponse {
	return ErrorResponse{Status: "ERROR", Reason: e.Reason}
}

func protocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
