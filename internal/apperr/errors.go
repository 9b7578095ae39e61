// Package apperr defines the error taxonomy shared across the application.
package apperr

import (
	"errors"
	"fmt"
)

// FetchError reports a failed retrieval of an image source.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EncodingError reports image content that could not be encoded consistently.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode image: %s", e.Reason)
}

// OracleError reports an oracle response that failed to parse or violated
// the declared output schema.
type OracleError struct {
	Reason string
	Err    error
}

func (e *OracleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("oracle response: %s", e.Reason)
}

func (e *OracleError) Unwrap() error { return e.Err }

// IsUpstream reports whether err originated in an external collaborator
// (image fetch or oracle call) rather than in caller input.
func IsUpstream(err error) bool {
	var fe *FetchError
	var oe *OracleError
	return errors.As(err, &fe) || errors.As(err, &oe)
}
