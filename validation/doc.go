// Package validation checks framepipe configuration and request input.
//
// Struct tags are checked with go-playground/validator; cross-field rules use
// the collecting Validator. Both report an INVALID_INPUT AppError whose
// "fields" detail lists every failure.
//
//	type Config struct {
//	    Capacity int `mapstructure:"capacity" validate:"min=1"`
//	}
//	err := validation.Validate(cfg)
package validation
