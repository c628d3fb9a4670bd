package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	skerrors "github.com/skeinworks/skein/internal/errors"
)

// withBackendTimeout creates a context with timeout for backend operations.
func withBackendTimeout(ctx context.Context, timeoutMs int) (context.Context, context.CancelFunc) {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	return context.WithTimeout(ctx, timeout)
}

// isTimeoutError checks if an error is a timeout error and wraps it with
// helpful context.
func isTimeoutError(err error, backendName string, timeoutMs int) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return skerrors.UserError{
			Message:    "Backend operation timed out",
			Details:    fmt.Sprintf("Operation exceeded %dms timeout", timeoutMs),
			Suggestion: getTimeoutSuggestion(backendName, timeoutMs),
		}
	}
	return err
}

// getTimeoutSuggestion provides helpful suggestions for timeout errors.
func getTimeoutSuggestion(backendName string, timeoutMs int) string {
	timeoutSec := timeoutMs / 1000

	switch {
	case strings.HasPrefix(backendName, "aws"):
		if timeoutSec < 5 {
			return "AWS API can be slow. Try increasing timeout_ms to 10000"
		}
		return "Check AWS connectivity and credentials. Verify region is correct"

	case strings.HasPrefix(backendName, "gcp"):
		if timeoutSec < 5 {
			return "Google Cloud API can be slow. Try increasing timeout_ms to 10000"
		}
		return "Check Google Cloud connectivity and authentication"

	case strings.HasPrefix(backendName, "azure"):
		if timeoutSec < 5 {
			return "Azure API can be slow. Try increasing timeout_ms to 10000"
		}
		return "Check Azure connectivity and authentication"

	case backendName == "metastore":
		return "Check metadata database connectivity. Verify the dsn and network path"

	case backendName == "keyring":
		return "The OS keychain may be prompting for access. Unlock it and try again"
	}

	if timeoutSec < 10 {
		return "Backend operation timed out. Try increasing timeout_ms in your backend configuration"
	}
	return "Check network connectivity and backend authentication. Consider increasing timeout_ms if the backend is consistently slow"
}
