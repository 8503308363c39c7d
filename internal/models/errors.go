package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeKeyData     = "KEY_DATA_ERROR"
	ErrCodeSourceConf  = "SOURCE_CONFIG_ERROR"
	ErrCodeDecryption  = "DECRYPTION_ERROR"
	ErrCodeDeviceLimit = "DEVICE_LIMIT"
	ErrCodeNetwork     = "NETWORK_ERROR"
	ErrCodeConfig      = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrInvalidKeyData      = errors.New("invalid key data")
	ErrInvalidSourceConfig = errors.New("invalid source config")
	ErrDecryptionFailed    = errors.New("incorrect passphrase or corrupted data")
	ErrDeviceLimitExceeded = errors.New("device limit exceeded")
	ErrAccountNotFound     = errors.New("account not found")
	ErrSourceNotFound      = errors.New("source not found")
	ErrPromptAborted       = errors.New("passphrase prompt aborted")
	ErrInvalidConfig       = errors.New("invalid configuration")
)

// APIError represents an error returned by the backend.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// CredentialError wraps a failure inside the credential resolution flow
// with enough context to tell which stage and account it belongs to.
type CredentialError struct {
	Stage     string
	AccountID string
	SourceID  string
	Err       error
}

func (e *CredentialError) Error() string {
	if e.SourceID != "" {
		return fmt.Sprintf("credentials %s: account %s: source %s: %v", e.Stage, e.AccountID, e.SourceID, e.Err)
	}
	return fmt.Sprintf("credentials %s: account %s: %v", e.Stage, e.AccountID, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
