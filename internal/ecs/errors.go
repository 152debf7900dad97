package ecs

import (
	"context"
	"errors"
	"net"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/lattiam/ecswait/internal/waiter"
)

// ErrorType is the category of a DescribeServices failure
type ErrorType int

const (
	// ErrorTypeUnknown is an error nothing below matched
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeThrottling means the API rejected the call for rate
	ErrorTypeThrottling
	// ErrorTypeServer is a 5xx or service-side fault
	ErrorTypeServer
	// ErrorTypeTimeout is a client side or network timeout
	ErrorTypeTimeout
	// ErrorTypeConnection is a network level failure
	ErrorTypeConnection
	// ErrorTypeNotFound means the cluster or service does not exist
	ErrorTypeNotFound
	// ErrorTypePermission means the caller may not describe the service
	ErrorTypePermission
	// ErrorTypeInvalidRequest means the request itself is malformed
	ErrorTypeInvalidRequest
)

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeThrottling:
		return "throttling"
	case ErrorTypeServer:
		return "server"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypePermission:
		return "permission"
	case ErrorTypeInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

// ErrorInfo is the classification of one error
type ErrorInfo struct {
	Type        ErrorType
	Code        string
	Retryable   bool
	Description string
}

var (
	notFoundCodes = map[string]bool{
		"ClusterNotFoundException": true,
		"ServiceNotFoundException": true,
	}
	permissionCodes = map[string]bool{
		"AccessDeniedException":       true,
		"AccessDenied":                true,
		"UnauthorizedOperation":       true,
		"UnrecognizedClientException": true,
		"InvalidClientTokenId":        true,
		"ExpiredTokenException":       true,
		"InvalidSignatureException":   true,
		"MissingAuthenticationToken":  true,
		"SignatureDoesNotMatch":       true,
	}
	invalidRequestCodes = map[string]bool{
		"InvalidParameterException": true,
		"ValidationException":       true,
		"ClientException":           true,
	}
	throttlingCodes = map[string]bool{
		"ThrottlingException":       true,
		"Throttling":                true,
		"ThrottledException":        true,
		"TooManyRequestsException":  true,
		"RequestLimitExceeded":      true,
		"RequestThrottled":          true,
		"RequestThrottledException": true,
		"SlowDown":                  true,
	}
	serverCodes = map[string]bool{
		"ServerException":             true,
		"InternalFailure":             true,
		"InternalError":               true,
		"ServiceUnavailable":          true,
		"ServiceUnavailableException": true,
	}
)

// ErrorClassifier sorts DescribeServices errors into configuration
// problems and transient failures
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify categorizes err. API error codes are checked first, then the
// HTTP status, then well known network errors, then message patterns.
func (ec *ErrorClassifier) Classify(err error) *ErrorInfo {
	if err == nil {
		return &ErrorInfo{Type: ErrorTypeUnknown}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if info := ec.classifyCode(apiErr.ErrorCode()); info != nil {
			return info
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == 429:
			return &ErrorInfo{Type: ErrorTypeThrottling, Retryable: true, Description: "Too many requests"}
		case status >= 500:
			return &ErrorInfo{Type: ErrorTypeServer, Retryable: true, Description: "Server error"}
		case status == 401 || status == 403:
			return &ErrorInfo{Type: ErrorTypePermission, Description: "Request not authorized"}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ErrorInfo{Type: ErrorTypeTimeout, Retryable: true, Description: "Operation timeout"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &ErrorInfo{Type: ErrorTypeTimeout, Retryable: true, Description: "Network timeout"}
		}
		return &ErrorInfo{Type: ErrorTypeConnection, Retryable: true, Description: "Network failure"}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, "connection refused", "connection reset by peer", "no such host",
		"no route to host", "network is unreachable", "broken pipe", "eof"):
		return &ErrorInfo{Type: ErrorTypeConnection, Retryable: true, Description: "Connection failure"}
	case containsAny(errStr, "timeout", "deadline exceeded", "timed out"):
		return &ErrorInfo{Type: ErrorTypeTimeout, Retryable: true, Description: "Operation timeout"}
	case containsAny(errStr, "rate exceeded", "throttl", "too many requests"):
		return &ErrorInfo{Type: ErrorTypeThrottling, Retryable: true, Description: "Request throttled"}
	}

	// Anything else may still clear up; the waiter's transient bound
	// stops it from retrying forever.
	return &ErrorInfo{Type: ErrorTypeUnknown, Retryable: true, Description: "Unknown error type"}
}

func (ec *ErrorClassifier) classifyCode(code string) *ErrorInfo {
	switch {
	case notFoundCodes[code]:
		return &ErrorInfo{Type: ErrorTypeNotFound, Code: code, Description: "Cluster or service not found"}
	case permissionCodes[code]:
		return &ErrorInfo{Type: ErrorTypePermission, Code: code, Description: "Not permitted to describe service"}
	case invalidRequestCodes[code]:
		return &ErrorInfo{Type: ErrorTypeInvalidRequest, Code: code, Description: "Invalid request"}
	case throttlingCodes[code]:
		return &ErrorInfo{Type: ErrorTypeThrottling, Code: code, Retryable: true, Description: "Request throttled"}
	case serverCodes[code]:
		return &ErrorInfo{Type: ErrorTypeServer, Code: code, Retryable: true, Description: "Service error"}
	}
	return nil
}

// Wrap converts a DescribeServices error into a waiter error: a
// *waiter.ConfigurationError when retrying cannot help, otherwise a
// *waiter.TransientError.
func (ec *ErrorClassifier) Wrap(ref waiter.DeploymentReference, op string, err error) error {
	info := ec.Classify(err)
	if info.Retryable {
		return waiter.NewTransientError(op, err)
	}

	reason := info.Description
	if info.Type == ErrorTypeNotFound {
		if info.Code == "ClusterNotFoundException" {
			reason = "cluster not found"
		} else {
			reason = "service not found"
		}
	}
	return waiter.NewConfigurationError(ref, reason, err)
}

func containsAny(s string, substrings ...string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
