package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/gkeb/node4j/internal/types"
)

// Schema validates field values before they are written. owner is the kind
// name or edge type the fields belong to. With partial set, missing
// required fields are not reported (updates and patches).
type Schema interface {
	Validate(ctx context.Context, owner string, fields []Field, values map[string]any, partial bool) error
}

// TagSchema is the default Schema. It checks declared types and required
// fields, then applies each field's validator tags.
type TagSchema struct {
	validate *validator.Validate
}

// NewTagSchema creates a TagSchema backed by go-playground/validator.
func NewTagSchema() *TagSchema {
	return &TagSchema{validate: validator.New()}
}

var _ Schema = (*TagSchema)(nil)

// Validate implements Schema. Values for undeclared keys are ignored here;
// the compiler rejects them.
func (s *TagSchema) Validate(ctx context.Context, owner string, fields []Field, values map[string]any, partial bool) error {
	for _, f := range fields {
		v, present := values[f.Name]
		if !present || v == nil {
			if f.Required && !partial {
				return types.NewValidationError(owner, f.Name, errors.New("field is required"))
			}
			if present && f.Required {
				return types.NewValidationError(owner, f.Name, errors.New("field cannot be null"))
			}
			continue
		}
		if !f.Type.Accepts(v) {
			return types.NewValidationError(owner, f.Name, fmt.Errorf("expected %s, got %T", f.Type, v))
		}
		if f.Validate == "" {
			continue
		}
		if err := s.validate.VarCtx(ctx, v, f.Validate); err != nil {
			return types.NewValidationError(owner, f.Name, formatTagError(err))
		}
	}
	return nil
}

func formatTagError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Errorf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return fmt.Errorf("failed %s", fe.Tag())
}
