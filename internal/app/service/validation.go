package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var lnaddressPattern = regexp.MustCompile(`^[a-z0-9_.-]+$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the "lnaddress" tag registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("lnaddress", func(fl validator.FieldLevel) bool {
			return lnaddressPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateUsername checks the lightning address format of username.
func ValidateUsername(username string) error {
	if err := Validator().Var(username, "required,max=64,lnaddress"); err != nil {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateStruct runs struct tag validation and flattens the failures
// into a single ErrValidation.
func ValidateStruct(v interface{}) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return validationErrorf("%s", strings.Join(msgs, "; "))
}
