package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedModel is matched by every *UnsupportedModelError.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrProcessorNotConfigured is returned when a processor has no usable client.
	ErrProcessorNotConfigured = errors.New("processor not configured")
)

// UnsupportedModelError reports a model id the processor does not serve.
type UnsupportedModelError struct {
	Processor string
	ModelID   string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("model %s not supported by %s processor", e.ModelID, e.Processor)
}

// Is lets errors.Is match ErrUnsupportedModel.
func (e *UnsupportedModelError) Is(target error) bool {
	return target == ErrUnsupportedModel
}

// ProviderError wraps a failure of a vendor API call.
type ProviderError struct {
	Processor string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Processor, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether the failure looks like an authentication problem.
func (e *ProviderError) IsAuth() bool {
	return IsAuthError(e.Err)
}

var authIndicators = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"authentication required",
	"access denied",
	"invalid token",
	"token expired",
}

// IsAuthError reports whether err's message indicates an authentication failure.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range authIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
