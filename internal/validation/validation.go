package validation

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct checks the `validate` tags of v.
func Struct(v any) error {
	return validate.Struct(v)
}

// FirstField returns the first failing field of a Struct error, in field
// declaration order.
func FirstField(err error) (validator.FieldError, bool) {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return nil, false
	}
	return errs[0], true
}
