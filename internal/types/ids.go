package types

import (
	"fmt"

	"github.com/google/uuid"
)

// NewUID generates the stable identifier assigned to an instance at creation.
func NewUID() string {
	return uuid.NewString()
}

// ParseUID validates a caller supplied identifier and returns it in canonical form.
func ParseUID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("uid cannot be empty")
	}

	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid uid format: %w", err)
	}

	return parsed.String(), nil
}
