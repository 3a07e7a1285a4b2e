package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/health-assistant/internal/infra/inference"
	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

const genericFailureMessage = "something went wrong, please try again"

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

// fromDomainError maps application error codes to transport errors. Client
// mistakes keep their message; infrastructure faults are reported generically.
func fromDomainError(err error) *HTTPError {
	var appErr *apperrors.AppError
	message := genericFailureMessage
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidInput:
		return NewHTTPError(http.StatusBadRequest, "invalid_request", message, err)
	case apperrors.CodeNotFound:
		return NewHTTPError(http.StatusNotFound, "not_found", message, err)
	case apperrors.CodeInference:
		if inference.IsCircuitOpen(err) {
			return NewHTTPError(http.StatusServiceUnavailable, "inference_unavailable", genericFailureMessage, err)
		}
		return NewHTTPError(http.StatusBadGateway, apperrors.CodeInference, genericFailureMessage, err)
	case apperrors.CodeQueue:
		return NewHTTPError(http.StatusServiceUnavailable, apperrors.CodeQueue, genericFailureMessage, err)
	case apperrors.CodeStorage:
		return NewHTTPError(http.StatusInternalServerError, apperrors.CodeStorage, genericFailureMessage, err)
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal_error", genericFailureMessage, err)
	}
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return fromDomainError(err)
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}
