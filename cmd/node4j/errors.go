package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gkeb/node4j/internal/types"
)

// Exit code constants for the CLI
const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitError indicates a general error
	ExitError = 1
	// ExitUsage indicates invalid flags or arguments
	ExitUsage = 2
	// ExitTimeout indicates the operation timed out
	ExitTimeout = 3
	// ExitCancelled indicates the operation was cancelled
	ExitCancelled = 4
	// ExitConfigError indicates a configuration or model file error
	ExitConfigError = 10
	// ExitCompileError indicates a statement was rejected before reaching the server
	ExitCompileError = 11
	// ExitDatabaseError indicates the server failed or rejected a statement
	ExitDatabaseError = 12
	// ExitUnhealthy indicates the health probe failed
	ExitUnhealthy = 13
)

// CLIError represents a CLI-specific error with an exit code
type CLIError struct {
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// WrapError creates a new CLIError wrapping an existing error
func WrapError(code int, message string, err error) *CLIError {
	return &CLIError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewCLIError creates a new CLIError with the given code and message
func NewCLIError(code int, message string) *CLIError {
	return &CLIError{
		Code:    code,
		Message: message,
	}
}

// HandleError prints err to the command's error output and returns the
// exit code for it.
func HandleError(cmd *cobra.Command, err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, context.Canceled) {
		cmd.PrintErrln("Operation cancelled")
		return ExitCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		cmd.PrintErrln("Operation timed out")
		return ExitTimeout
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		cmd.PrintErrln("Error:", cliErr.Message)
		if cliErr.Cause != nil {
			cmd.PrintErrln("Cause:", cliErr.Cause)
		}
		return cliErr.Code
	}

	var typedErr *types.Error
	if errors.As(err, &typedErr) {
		cmd.PrintErrln("Error:", typedErr.Error())
		if verbose := cmd.Flag("verbose"); verbose != nil && verbose.Changed {
			if typedErr.Query != "" {
				cmd.PrintErrln("Statement:")
				cmd.PrintErrln(typedErr.Query)
			}
			for k, v := range typedErr.Context {
				cmd.PrintErrf("  %s: %v\n", k, v)
			}
		}
		return exitCodeFor(typedErr.Code)
	}

	cmd.PrintErrln("Error:", err)
	return ExitError
}

// exitCodeFor maps error codes to CLI exit codes.
func exitCodeFor(code types.ErrorCode) int {
	switch code {
	case types.CONFIG_LOAD_FAILED, types.CONFIG_PARSE_FAILED, types.CONFIG_VALIDATION_FAILED,
		types.ErrCodeRegistry:
		return ExitConfigError
	case types.ErrCodeCompile, types.ErrCodeInvalidArgument:
		return ExitCompileError
	case types.ErrCodeConnectivity, types.ErrCodeStatement, types.ErrCodeTransaction,
		types.ErrCodeConstraintViolation, types.ErrCodeConcurrencyConflict:
		return ExitDatabaseError
	default:
		return ExitError
	}
}

// isVerbose checks the environment and raw arguments. It is used during
// panic recovery, when flags may not have been parsed.
func isVerbose() bool {
	if os.Getenv("NODE4J_VERBOSE") != "" {
		return true
	}
	for _, arg := range os.Args {
		if arg == "-v" || arg == "--verbose" {
			return true
		}
	}
	return false
}
