package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  NewError(ErrCodeCompile, "unknown field Person.nickname"),
			want: "[COMPILE_FAILED] unknown field Person.nickname",
		},
		{
			name: "with cause",
			err:  WrapError(ErrCodeConnectivity, "session run failed", errors.New("dial tcp: refused")),
			want: "[CONNECTIVITY_FAILED] session run failed: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("manager: %w", WrapError(ErrCodeConstraintViolation, "create failed", cause))

	assert.True(t, IsConstraintViolation(err))
	assert.False(t, IsConcurrencyConflict(err))
	assert.True(t, errors.Is(err, cause))

	var nerr *Error
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, ErrCodeConstraintViolation, nerr.Code)
}

func TestError_Context(t *testing.T) {
	err := NewValidationError("Person", "age", errors.New("must be >= 0")).
		WithQuery("CREATE (n:`Person`) SET n = $props")

	assert.True(t, IsValidationError(err))
	assert.Equal(t, "Person", err.Context["kind"])
	assert.Equal(t, "age", err.Context["field"])
	assert.Contains(t, err.Query, "CREATE")
}

func TestNewRetryableError(t *testing.T) {
	err := NewRetryableError(ErrCodeConcurrencyConflict, "deadlock detected")
	assert.True(t, err.Retryable)
	assert.True(t, IsConcurrencyConflict(err))
}

func TestHelpers_NilSafe(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsCompileError(errors.New("plain")))
}

func TestParseUID(t *testing.T) {
	uid := NewUID()
	got, err := ParseUID(uid)
	require.NoError(t, err)
	assert.Equal(t, uid, got)

	_, err = ParseUID("")
	assert.Error(t, err)

	_, err = ParseUID("not-a-uuid")
	assert.Error(t, err)
}

func TestHealthStatus(t *testing.T) {
	assert.True(t, Healthy("ok").IsHealthy())
	assert.False(t, Unhealthy("down").IsHealthy())
	assert.False(t, Degraded("slow").IsHealthy())
	assert.True(t, HealthStateDegraded.IsValid())
	assert.False(t, HealthState("sideways").IsValid())

	var s HealthState
	require.NoError(t, s.UnmarshalJSON([]byte(`"healthy"`)))
	assert.Equal(t, HealthStateHealthy, s)
	assert.Error(t, s.UnmarshalJSON([]byte(`"nope"`)))
}
