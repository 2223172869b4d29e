package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tickler/internal/types"
)

// Validator wraps go-playground/validator so request structs are validated
// the same way configuration is. Field names in error details use the
// struct's JSON tags so clients see the names they actually sent.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with JSON tag name resolution registered.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates a request struct against its `validate` tags.
// On failure it returns a 400 AppError with a per-field details map, e.g.
// {"task": "required"}. Non-validation errors (a nil or non-struct value)
// are reported as internal errors.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("validator received non-struct input", "error", err)
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"request validation failed unexpectedly",
			err,
		)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationFailed,
		"request failed validation",
		err,
		details,
	)
}
