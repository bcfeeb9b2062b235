// Package validation wraps a shared validator with the money tags used by
// request payloads.
//
//	money    decimal >= 0
//	percent  decimal in [0, 100]
//	positive decimal > 0
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	once     sync.Once
	validate *validator.Validate
	hundred  = decimal.NewFromInt(100)
)

func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// Decimals are structs; expose them as strings so field tags apply.
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})
		mustRegister(v, "money", func(d decimal.Decimal) bool { return !d.IsNegative() })
		mustRegister(v, "percent", func(d decimal.Decimal) bool { return !d.IsNegative() && d.LessThanOrEqual(hundred) })
		mustRegister(v, "positive", func(d decimal.Decimal) bool { return d.IsPositive() })
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, check func(decimal.Decimal) bool) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return check(d)
	})
	if err != nil {
		panic(err)
	}
}

// Struct validates s and returns a field to message map, or nil when s is
// valid. Field keys follow the json names, e.g. "items[1].quantity".
func Struct(s any) map[string]string {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"_": err.Error()}
	}
	return ProcessValidationErrors(validationErrors)
}

func ProcessValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		out[fieldPath(e)] = message(e)
	}
	return out
}

func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if", "required_unless":
		return "This field is required"
	case "excluded_if":
		return "This field is not allowed here"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "datetime":
		return "Must be a date formatted as " + e.Param()
	case "money":
		return "Must be a non-negative amount"
	case "percent":
		return "Must be a percentage between 0 and 100"
	case "positive":
		return "Must be greater than 0"
	default:
		return "Invalid value"
	}
}
