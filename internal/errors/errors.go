// Package errors defines user-facing error types with remediation hints.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError is an error shown to the user with helpful context.
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError is a configuration error with the offending field and value.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CommandError reports a failed child process.
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// BackendError wraps a secrets-backend failure with a remediation hint for
// that backend type.
func BackendError(backendName string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s backend error during %s", backendName, operation),
		Suggestion: backendSuggestion(backendName, err),
		Err:        err,
	}
}

// backendSuggestion maps common backend failures to a next step.
func backendSuggestion(backendName string, err error) string {
	errStr := err.Error()

	switch {
	case strings.HasPrefix(backendName, "aws"):
		if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for secretsmanager:GetSecretValue or ssm:GetParameter"
		}
		if strings.Contains(errStr, "ResourceNotFoundException") || strings.Contains(errStr, "ParameterNotFound") {
			return "Verify the connections_prefix and region for this backend"
		}
		if strings.Contains(errStr, "ThrottlingException") {
			return "AWS rate limit exceeded. Wait a moment and try again"
		}

	case strings.HasPrefix(backendName, "gcp"):
		if strings.Contains(errStr, "could not find default credentials") {
			return "Run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS"
		}
		if strings.Contains(errStr, "PermissionDenied") {
			return "Grant roles/secretmanager.secretAccessor on the project"
		}

	case strings.HasPrefix(backendName, "azure"):
		if strings.Contains(errStr, "DefaultAzureCredential") {
			return "Run 'az login' or configure a managed identity for the vault"
		}
		if strings.Contains(errStr, "Forbidden") {
			return "Check the Key Vault access policy grants get/list on secrets"
		}

	case backendName == "keyring":
		if strings.Contains(errStr, "secret service") || strings.Contains(errStr, "dbus") {
			return "A Secret Service implementation (gnome-keyring, KWallet) must be running"
		}

	case backendName == "metastore":
		if strings.Contains(errStr, "connection refused") {
			return "Check that the metadata database is reachable and the DSN is correct"
		}
		if strings.Contains(errStr, "password authentication failed") {
			return "Verify the metastore DSN credentials"
		}
	}

	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and backend configuration"
	}

	return ""
}

// IsRetryable reports whether an error looks transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError rewrites common technical failures into user-facing errors.
// Errors that already carry suggestions pass through unchanged.
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}
	if _, ok := err.(CommandError); ok {
		return err
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}
	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
