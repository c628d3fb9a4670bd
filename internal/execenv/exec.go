// Package execenv runs child processes with resolved secrets injected as
// environment variables.
package execenv

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	skerrors "github.com/skeinworks/skein/internal/errors"
	"github.com/skeinworks/skein/internal/logging"
)

// Env var prefixes for injected values. conn env names follow the
// SKEIN_CONN_<ID> convention so the child process can look connections up
// the same way the env backend serves them.
const (
	ConnEnvPrefix = "SKEIN_CONN_"
	VarEnvPrefix  = "SKEIN_VAR_"
)

// Executor handles running commands with ephemeral environment variables.
type Executor struct {
	logger *logging.Logger
	stdout io.Writer
}

// New creates a new executor.
func New(logger *logging.Logger) *Executor {
	return &Executor{logger: logger, stdout: os.Stdout}
}

// ExecOptions configures command execution.
type ExecOptions struct {
	Command          []string          // Command and arguments to run
	Environment      map[string]string // Environment variables to inject
	PreserveExisting bool              // Existing env vars win over injected values
	PrintVars        bool              // Print injected variable names with masked values
	WorkingDir       string            // Working directory for the command
	Timeout          int               // Timeout in seconds (0 for no timeout)
}

// ConnEnvName maps a conn id to its injected variable name.
func ConnEnvName(connID string) string {
	return ConnEnvPrefix + strings.ToUpper(connID)
}

// VarEnvName maps a variable key to its injected variable name.
func VarEnvName(key string) string {
	return VarEnvPrefix + strings.ToUpper(key)
}

// Exec runs a command with the provided environment variables. The child
// inherits stdio; its exit code is reported in the returned CommandError.
func (e *Executor) Exec(ctx context.Context, options ExecOptions) error {
	if len(options.Command) == 0 {
		return skerrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command after -- (e.g., skein exec pg_default -- python etl.py)",
		}
	}

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(options.Timeout)*time.Second)
		defer cancel()
	}

	cmdName := options.Command[0]
	if _, err := exec.LookPath(cmdName); err != nil {
		return skerrors.UserError{
			Message:    fmt.Sprintf("Command '%s' not found", cmdName),
			Details:    err.Error(),
			Suggestion: "Check that the command is installed and on your PATH",
			Err:        err,
		}
	}

	if options.PrintVars {
		e.printEnvironment(options.Environment)
	}

	cmd := exec.CommandContext(ctx, cmdName, options.Command[1:]...)
	cmd.Env = buildEnvironment(options.Environment, options.PreserveExisting)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	e.logger.Debug("Executing command: %s", strings.Join(options.Command, " "))
	e.logger.Debug("Environment variables injected: %d", len(options.Environment))

	if err := cmd.Run(); err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return skerrors.CommandError{
				Command:    strings.Join(options.Command, " "),
				ExitCode:   exitError.ExitCode(),
				Suggestion: "Check the command output above for details",
			}
		}
		return skerrors.CommandError{
			Command:    strings.Join(options.Command, " "),
			Message:    err.Error(),
			Suggestion: "Check the command output above for details",
		}
	}

	return nil
}

// buildEnvironment merges injected variables over the current process
// environment.
func buildEnvironment(injected map[string]string, preserveExisting bool) []string {
	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	for key, value := range injected {
		if preserveExisting {
			if _, exists := envMap[key]; exists {
				continue
			}
		}
		envMap[key] = value
	}

	result := make([]string, 0, len(envMap))
	for key, value := range envMap {
		result = append(result, fmt.Sprintf("%s=%s", key, value))
	}

	// Sort for consistent ordering (helps with debugging)
	sort.Strings(result)
	return result
}

// printEnvironment displays the injected variables with masked values.
func (e *Executor) printEnvironment(environment map[string]string) {
	if len(environment) == 0 {
		fmt.Fprintln(e.stdout, "No environment variables injected")
		return
	}

	fmt.Fprintf(e.stdout, "Injecting %d environment variables:\n", len(environment))

	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Fprintf(e.stdout, "  %s=%s\n", key, maskValue(environment[key]))
	}
	fmt.Fprintln(e.stdout)
}

// maskValue masks a secret value for display.
func maskValue(value string) string {
	if len(value) == 0 {
		return "(empty)"
	}
	if len(value) <= 3 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	}
	return value[:3] + strings.Repeat("*", 8) + value[len(value)-2:]
}
