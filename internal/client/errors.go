package client

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to the rendering layer.
var (
	ErrNetwork           = errors.New("network failure")
	ErrMalformedResponse = errors.New("malformed response")
	ErrUnauthenticated   = errors.New("unauthenticated")
)

// HTTPError is returned for non-success responses that have no more specific kind.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// Kind names one entry of the error taxonomy.
type Kind string

// Error taxonomy.
const (
	KindNone            Kind = ""
	KindNetwork         Kind = "network"
	KindHTTP            Kind = "http"
	KindMalformed       Kind = "malformed"
	KindUnauthenticated Kind = "unauthenticated"
	KindOther           Kind = "other"
)

// Classify maps err onto the error taxonomy.
func Classify(err error) Kind {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.As(err, &httpErr):
		return KindHTTP
	default:
		return KindOther
	}
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == 404
}
