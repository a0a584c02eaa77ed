// Package validation checks decoded structs against their validate tags.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("validation failed")

// Validator wraps go-playground/validator and reports fields by their
// serialized names.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that names fields after the given struct tag,
// e.g. "json" or "yaml".
func New(tagName string) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get(tagName), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Validator{v: v}
}

// Validate returns an ErrInvalid-wrapped error listing every failing field
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		messages = append(messages, fmt.Sprintf("%s %s", e.Namespace(), friendlyMessage(e)))
	}
	sort.Strings(messages)
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(messages, "; "))
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is empty", e.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max", "lte":
		return fmt.Sprintf("must not exceed %s", e.Param())
	case "ltefield":
		return fmt.Sprintf("must not exceed %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}
