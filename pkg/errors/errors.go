package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidLabel      = errors.New("invalid label")
	ErrInputUnavailable  = errors.New("input unavailable")
	ErrClassifierFailure = errors.New("classifier failure")
	ErrCorpusFormat      = errors.New("corpus format error")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// InvalidLabel reports a label outside the active taxonomy.
func InvalidLabel(format string, args ...any) *AppError {
	return Newf(ErrInvalidLabel, http.StatusUnprocessableEntity, format, args...)
}

// InputUnavailable reports a missing or unreadable source or destination.
func InputUnavailable(format string, args ...any) *AppError {
	return Newf(ErrInputUnavailable, http.StatusNotFound, format, args...)
}

// ClassifierFailure reports a failed or misaligned classifier call.
func ClassifierFailure(format string, args ...any) *AppError {
	return Newf(ErrClassifierFailure, http.StatusBadGateway, format, args...)
}

// CorpusFormat reports malformed annotated XML.
func CorpusFormat(format string, args ...any) *AppError {
	return Newf(ErrCorpusFormat, http.StatusBadRequest, format, args...)
}

// InvalidInput reports a malformed request.
func InvalidInput(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, http.StatusBadRequest, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidLabel):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInputUnavailable):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrCorpusFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrClassifierFailure):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}
