package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/elfcopyflat/internal/flatten"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrBodyTooLarge   = errors.New("request body too large")
	ErrInvalidImage   = errors.New("invalid ELF image")
)

type invalidRequestError struct {
	param string
	msg   string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidParam(param string, err error) error {
	return invalidRequestError{param: param, msg: param + ": " + err.Error()}
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ResponseError `json:"error"`
}

type ResponseError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Param     string `json:"param,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps an error to a status code and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "request_too_large"
	case errors.Is(err, flatten.ErrOverlap),
		errors.Is(err, flatten.ErrBelowBase),
		errors.Is(err, flatten.ErrImageTooLarge):
		return http.StatusUnprocessableEntity, "unprocessable_image"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, ErrInvalidImage):
		return http.StatusBadRequest, "invalid_image"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
