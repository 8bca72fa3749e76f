// Package validator wraps struct validation for request bodies.
package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates request structs using the underlying validator
// library. Field names in errors follow the struct's json tags, so they
// match what the client actually sent.
type Validator struct {
	cli *validator.Validate
}

// ValidationError represents an error encountered during validation of a
// struct field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New initializes and returns a new Validator.
func New() *Validator {
	cli := validator.New(validator.WithRequiredStructEnabled())
	cli.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{cli: cli}
}

// ValidateStruct validates the provided struct and returns a slice of
// validation errors, nil when the struct is valid.
func (v *Validator) ValidateStruct(s interface{}) []ValidationError {
	if err := v.cli.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

func (v *Validator) formatError(err error) []ValidationError {
	errs := make([]ValidationError, 0)
	for _, fe := range err.(validator.ValidationErrors) {
		errs = append(errs, ValidationError{
			Field:   fe.Field(),
			Message: "failed on the '" + fe.Tag() + "' tag",
		})
	}
	return errs
}
