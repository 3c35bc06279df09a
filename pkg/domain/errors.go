package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrPasteNotFound      = NewErr("PASTE_NOT_FOUND", "Paste not found", http.StatusNotFound)
	ErrValidation         = NewErr("VALIDATION_FAILED", "invalid paste", http.StatusBadRequest)
	ErrBackendUnavailable = NewErr("BACKEND_UNAVAILABLE", "storage unavailable", http.StatusServiceUnavailable)
	ErrCorruptRecord      = NewErr("CORRUPT_RECORD", "corrupt paste record", http.StatusInternalServerError)
	ErrPasteTooLarge      = NewErr("PASTE_TOO_LARGE", "paste too large", http.StatusRequestEntityTooLarge)
	ErrInvalidRequest     = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrRateLimitExceeded  = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrUnsupportedMedia   = NewErr("UNSUPPORTED_MEDIA_TYPE", "expected Content-Type: application/json", http.StatusUnsupportedMediaType)
	ErrInternalServer     = NewErr("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// ValidationError carries the human-readable reason a create request was rejected.
// errors.Is(err, ErrValidation) holds for every ValidationError.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
func (e *ValidationError) Cause() error { return ErrValidation }

type ErrResp struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ToResp(err error) ErrResp {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrResp{Error: ve.Reason, Code: ErrValidation.Code}
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return ErrResp{Error: e.Msg, Code: e.Code}
	}
	return ErrResp{Error: ErrInternalServer.Msg, Code: ErrInternalServer.Code}
}
func Status(err error) int {
	if errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
