// Package validation maps struct-tag validation failures onto stable API codes.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/warebill/internal/apperror"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates s. Missing required fields become MISSING_PARAMETERS,
// every other rule becomes INVALID_ARGUMENT.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.New(apperror.CodeInvalidArgument, "invalid request").Wrap(err)
	}

	var missing []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		}
	}
	if len(missing) > 0 {
		return apperror.ErrMissingParameters.
			WithField(missing[0]).
			WithMessage("missing required parameters: %s", strings.Join(missing, ", "))
	}

	first := verrs[0]
	return apperror.New(apperror.CodeInvalidArgument, first.Field()+" is invalid").WithField(first.Field())
}
