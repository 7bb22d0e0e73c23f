package dto

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var testCaseNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// RegisterValidations installs the custom tags used by workbench requests.
func RegisterValidations(validate *validator.Validate) error {
	return validate.RegisterValidation("testcase_name", func(fl validator.FieldLevel) bool {
		return testCaseNamePattern.MatchString(fl.Field().String())
	})
}

// NewValidator returns a validator with the workbench tags registered.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterValidations(validate); err != nil {
		panic(err)
	}
	return validate
}
