// Package request has structs of http requests and their validation
package request

import (
	"github.com/go-playground/validator/v10"
)

// Trade is the body of a buy or a sell
type Trade struct {
	Ticker   string `json:"ticker" validate:"required,alphanum,max=12"`
	Quantity int64  `json:"quantity" validate:"gt=0"`
}

// Alert is the body of a new price alert
type Alert struct {
	Ticker    string  `json:"ticker" validate:"required,alphanum,max=12"`
	Condition string  `json:"condition" validate:"oneof=> <"`
	Target    float64 `json:"target" validate:"gt=0"`
}

// Register is the body of a new account
type Register struct {
	Name string `json:"name" validate:"max=64"`
}

// Limit is the query of history endpoints
type Limit struct {
	Limit int `form:"limit" validate:"gte=0,lte=100"`
}

// Days is the query of the candles endpoint
type Days struct {
	Days int `form:"days" validate:"gte=0,lte=365"`
}

var validate = validator.New()

// Validate checks the struct by its validate tags
func Validate(s interface{}) error {
	return validate.Struct(s)
}

// FieldError returns the first failed field and its rule
func FieldError(err error) (field, rule string, ok bool) {
	errs, isValidation := err.(validator.ValidationErrors)
	if !isValidation || len(errs) == 0 {
		return "", "", false
	}
	return errs[0].Field(), errs[0].Tag(), true
}
