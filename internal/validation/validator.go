// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

// Package validation runs go-playground/validator struct validation and
// reports failures as faults.ValidationError.
//
// Field names in errors follow the struct's json tag, falling back to the
// koanf tag, so API clients and operators see the names they wrote:
//
//	type UpdateRequest struct {
//	    Threshold float64 `json:"threshold" validate:"unit_interval"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    // errors.Is(err, faults.ErrValidation) == true
//	}
//
// Custom tags:
//   - unit_interval: a float within [0,1]
//   - anomaly_type: a known detection.AnomalyType
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator, registering custom tags on
// first use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(fieldName)
		mustRegister("unit_interval", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			switch f.Kind() {
			case reflect.Float32, reflect.Float64:
				return f.Float() >= 0 && f.Float() <= 1
			default:
				return false
			}
		})
		mustRegister("anomaly_type", func(fl validator.FieldLevel) bool {
			return fl.Field().Kind() == reflect.String && detection.AnomalyType(fl.Field().String()).Valid()
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validator: %v", tag, err))
	}
}

func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "koanf"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return "-"
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Errors collects every failed rule of one ValidateStruct call. It matches
// faults.ErrValidation.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is matches faults.ErrValidation.
func (e Errors) Is(target error) bool { return target == faults.ErrValidation }

// As lets errors.As extract the first failure as a *faults.ValidationError.
func (e Errors) As(target any) bool {
	if p, ok := target.(**faults.ValidationError); ok {
		*p = e.First()
		return true
	}
	return false
}

// First returns the first failure as a faults.ValidationError.
func (e Errors) First() *faults.ValidationError {
	if len(e) == 0 {
		return &faults.ValidationError{Reason: "validation failed"}
	}
	return &faults.ValidationError{Field: e[0].Field, Reason: e[0].Message}
}

// ValidateStruct validates s. It returns nil or an Errors value.
func ValidateStruct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return faults.Invalid("", "%v", err)
	}

	out := make(Errors, len(verrs))
	for i, fe := range verrs {
		out[i] = FieldError{
			Field:   namespace(fe),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		}
	}
	return out
}

// namespace drops the root type name: "Config.tuning.step" becomes
// "tuning.step".
func namespace(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

var messages = map[string]string{
	"required":      "%s is required",
	"unit_interval": "%s must be within [0,1]",
	"anomaly_type":  "%s must be a known anomaly type",
	"latitude":      "%s must be a valid latitude (-90 to 90)",
	"longitude":     "%s must be a valid longitude (-180 to 180)",
	"url":           "%s must be a valid URL",
}

var paramMessages = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translate(fe validator.FieldError) string {
	field := namespace(fe)
	if tmpl, ok := messages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := paramMessages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}

	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	} else if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
		unit = " items"
	}
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, fe.Param(), unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, fe.Param(), unit)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
