package batch

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/shelf-api/internal/domain"
)

// RowValidator checks book rows against their struct tags.
type RowValidator struct {
	validate *validator.Validate
}

// NewRowValidator creates a validator reporting fields by their JSON names.
func NewRowValidator() *RowValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RowValidator{validate: v}
}

// Validate normalizes row and returns the first failing field as a
// *domain.ValidationError.
func (v *RowValidator) Validate(row domain.BookRow) (domain.BookRow, error) {
	row = row.Normalize()

	err := v.validate.Struct(row)
	if err == nil {
		return row, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return row, domain.NewValidationError("", err.Error(), nil)
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return row, domain.NewValidationError(fe.Field(), "is required", nil)
	case "max":
		return row, domain.NewValidationError(fe.Field(), "is too long (maximum is "+fe.Param()+" characters)", nil)
	}
	return row, domain.NewValidationError(fe.Field(), "is invalid", nil)
}
