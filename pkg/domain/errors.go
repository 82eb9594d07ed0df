package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrClipNotFound      = NewErr("CLIP_NOT_FOUND", "clip not found", http.StatusNotFound)
	ErrClipTooLarge      = NewErr("CLIP_TOO_LARGE", "clip too large", http.StatusBadRequest)
	ErrContentRequired   = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest)
	ErrInvalidExpiry     = NewErr("INVALID_EXPIRY", "expiry must be in the future", http.StatusBadRequest)
	ErrInvalidRequest    = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrPasswordRequired  = NewErr("PASSWORD_REQUIRED", "a password is required to view this clip", http.StatusUnauthorized)
	ErrInvalidPassword   = NewErr("INVALID_PASSWORD", "incorrect password", http.StatusUnauthorized)
	ErrRateLimitExceeded = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrInternalServer    = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)

	// ErrCodeConflict is recovered inside the service by regenerating the
	// short code; it never reaches a caller.
	ErrCodeConflict = NewErr("CODE_CONFLICT", "short code already taken", http.StatusInternalServerError)
	// ErrCodeExhausted is returned when the retry budget for code
	// generation runs out.
	ErrCodeExhausted = NewErr("CODE_GENERATION_FAILED", "could not allocate a short code", http.StatusInternalServerError)
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

type ErrResp struct {
	Error ErrDetail `json:"error"`
}

type ErrDetail struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

func ToResp(err error) ErrResp {
	if e, ok := err.(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}

func Status(err error) int {
	if e, ok := err.(*Err); ok {
		return e.Status
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
