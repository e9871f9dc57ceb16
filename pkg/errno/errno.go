package errno

import (
	"errors"
	"fmt"
)

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	case *VaultError:
		return ErrVault.Code, typed.Error()
	case *SigningError:
		return ErrSigning.Code, typed.Error()
	}

	// Validationf 等包装错误: 解包出内层 Errno, 细节保留在消息里
	var wrapped Errno
	if errors.As(err, &wrapped) {
		return wrapped.Code, err.Error()
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrTokenInvalid     = Errno{Code: 10003, Message: "Token invalid"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Business Errors (20000+)
var (
	ErrWalletNotFound    = Errno{Code: 20101, Message: "Wallet not found"}
	ErrInsufficientFunds = Errno{Code: 20102, Message: "Insufficient funds"}
	ErrValidation        = Errno{Code: 20103, Message: "Validation failed"}
	ErrRateLimitExceeded = Errno{Code: 20104, Message: "Rate limit exceeded"}
	ErrCircuitOpen       = Errno{Code: 20105, Message: "Circuit breaker open"}
	ErrVault             = Errno{Code: 20201, Message: "Vault operation failed"}
	ErrSigning           = Errno{Code: 20301, Message: "Signing operation failed"}
)

// VaultError 金库对外部账本/铸币服务调用失败，携带操作名和细节
// VaultError carries the failing vault operation and the ledger detail.
type VaultError struct {
	Op      string
	Details string
}

func (e *VaultError) Error() string {
	return fmt.Sprintf("vault %s: %s", e.Op, e.Details)
}

// SigningError 签名服务调用失败
type SigningError struct {
	Op      string
	Details string
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing %s: %s", e.Op, e.Details)
}

// Validationf wraps ErrValidation with a human readable reason so that
// errors.Is(err, ErrValidation) still matches.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
