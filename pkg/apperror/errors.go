package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code string) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok && ae.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Codes referenced outside this package.
const (
	CodeInvalidAmount       = "LED_001"
	CodeNotFound            = "LED_002"
	CodeNoPending           = "LED_003"
	CodeValidation          = "LED_004"
	CodeConcurrencyConflict = "STL_001"
	CodeGatewayTransient    = "STL_002"
	CodeGatewayRejected     = "STL_003"
	CodeUnknownProvider     = "STL_004"
)

// ---- Ledger (LED) ----

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Amount must be positive", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrNoPendingTransactions() *AppError {
	return New(CodeNoPending, "No pending transactions", http.StatusNotFound)
}

// Validation returns a LED_004 request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Settlement & Gateway (STL) ----

func ErrConcurrencyConflict(userID string) *AppError {
	return New(CodeConcurrencyConflict, fmt.Sprintf("settlement already in progress for user %s", userID), http.StatusConflict)
}

func ErrGatewayTransient(err error) *AppError {
	return Wrap(CodeGatewayTransient, "Gateway temporarily unavailable", http.StatusBadGateway, err)
}

func ErrGatewayRejected(reason string) *AppError {
	return New(CodeGatewayRejected, reason, http.StatusUnprocessableEntity)
}

func ErrUnknownProvider(provider string) *AppError {
	return New(CodeUnknownProvider, fmt.Sprintf("unknown provider: %s", provider), http.StatusBadRequest)
}

// ---- Security & Authentication (SEC / AUTH) ----

func ErrMissingSignature() *AppError {
	return New("SEC_001", "Missing signature headers", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
