package tenant

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/edapp/edapp/core"
)

var (
	slugTag  = "slug"
	slugText = "only lowercase letters, digits and inner hyphens are allowed"

	unreservedTag  = "unreserved"
	unreservedText = "this slug is reserved"
)

// InitValidators registers the tenant validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(slugTag, func(fl validator.FieldLevel) bool {
		return ValidSlug(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, slugTag, slugText)

	_ = validate.RegisterValidation(unreservedTag, func(fl validator.FieldLevel) bool {
		return AvailableSlug(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, unreservedTag, unreservedText)
}
