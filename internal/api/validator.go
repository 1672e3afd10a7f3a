package api

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/keyxmakerx/sentinel/internal/apperror"
)

var (
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][-a-zA-Z0-9_@.]{0,127}$`)
	base32Regex = regexp.MustCompile(`^[A-Za-z2-7]+=*$`)
)

// Validator adapts go-playground/validator to echo.Validator. Field names
// in errors are the JSON names the client sent.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator with the custom rules "userid" and
// "base32" registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})

	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return userIDRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("base32", func(fl validator.FieldLevel) bool {
		return base32Regex.MatchString(fl.Field().String())
	})

	return &Validator{validate: v}
}

// Validate implements echo.Validator.
func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}

// validationError turns a validator failure into a 400 naming the first
// violated field and constraint.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.NewValidation("invalid request.")
	}
	fe := verrs[0]
	constraint := fe.Tag()
	if fe.Param() != "" {
		constraint += "=" + fe.Param()
	}
	return apperror.NewValidation(fmt.Sprintf("invalid parameter: %s (%s).", fe.Field(), constraint))
}
