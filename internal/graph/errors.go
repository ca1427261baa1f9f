package graph

import (
	"context"
	"errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/gkeb/node4j/internal/types"
)

// Neo4j status codes that map to dedicated error codes.
const (
	statusConstraintValidation = "Neo.ClientError.Schema.ConstraintValidationFailed"
	statusDeadlock             = "Neo.TransientError.Transaction.DeadlockDetected"
	statusLockTimeout          = "Neo.TransientError.Transaction.LockAcquisitionTimeout"
	statusOutdated             = "Neo.TransientError.Transaction.Outdated"
	statusSecurityPrefix       = "Neo.ClientError.Security."
)

// classifyError maps driver errors onto the node4j error codes. Nothing is
// retried; transient server errors are flagged Retryable as a hint.
func classifyError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var nerr *types.Error
	if errors.As(err, &nerr) {
		return err
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		code := neoErr.Code
		switch {
		case code == statusConstraintValidation:
			return types.WrapError(types.ErrCodeConstraintViolation, msg, err).
				WithContext("neo4j_code", code)
		case code == statusDeadlock || code == statusLockTimeout || code == statusOutdated:
			e := types.WrapError(types.ErrCodeConcurrencyConflict, msg, err).
				WithContext("neo4j_code", code)
			e.Retryable = true
			return e
		case strings.HasPrefix(code, statusSecurityPrefix):
			return types.WrapError(types.ErrCodeConnectivity, msg, err).
				WithContext("neo4j_code", code)
		default:
			return types.WrapError(types.ErrCodeStatement, msg, err).
				WithContext("neo4j_code", code)
		}
	}

	if neo4j.IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		return types.WrapError(types.ErrCodeConnectivity, msg, err)
	}
	return types.WrapError(types.ErrCodeStatement, msg, err)
}
