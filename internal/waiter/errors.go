package waiter

import (
	"errors"
	"fmt"
)

// Failure messages surfaced in results
const (
	MsgLostVisibility = "lost visibility into deployment status"
	MsgSuperseded     = "deployment superseded before completion"
	MsgRolloutFailed  = "deployment rollout failed"
)

// ConfigurationError means the referenced cluster or service cannot be
// watched at all. It is never retried.
type ConfigurationError struct {
	Reference DeploymentReference
	Reason    string
	Err       error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid wait target %s: %s", e.Reference.Key(), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransientError is an observation failure that may go away on retry,
// such as throttling, network errors, or a temporarily unavailable API.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transient observation error: %v", e.Err)
	}
	return fmt.Sprintf("transient observation error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewConfigurationError builds a ConfigurationError
func NewConfigurationError(ref DeploymentReference, reason string, err error) *ConfigurationError {
	return &ConfigurationError{Reference: ref, Reason: reason, Err: err}
}

// NewTransientError builds a TransientError
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsTransient reports whether err is or wraps a TransientError
func IsTransient(err error) bool {
	var tErr *TransientError
	return errors.As(err, &tErr)
}
