package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/bulk-plasmid-seq/internal/failure"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// ErrValidation indicates a malformed request
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return "validation error: " + e.Field + " - " + e.Message
}

// ErrorKind classifies err for clients.
func ErrorKind(err error) failure.Kind {
	var v *ErrValidation
	var tooLarge *http.MaxBytesError
	if errors.As(err, &v) || errors.As(err, &tooLarge) {
		return failure.KindValidation
	}
	return failure.KindOf(err)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch ErrorKind(err) {
	case failure.KindValidation, failure.KindEmptyResult:
		return http.StatusBadRequest
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindCanceled:
		return http.StatusConflict
	case failure.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
