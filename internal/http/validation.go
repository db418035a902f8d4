package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nuru484/BeThere-server/internal/application"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest decodes a JSON body into dst and validates its struct tags.
func decodeRequest(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errBadRequestBody
	}
	return validateRequest(dst)
}

func validateRequest(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	vErr := &application.ValidationError{FieldErrors: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fieldPath(fe)
		if _, exists := vErr.FieldErrors[field]; exists {
			continue
		}
		vErr.FieldErrors[field] = fieldMessage(fe)
	}
	return vErr
}

// fieldPath drops the root struct name from a namespace such as
// "eventRequest.location.latitude".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", name, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must use the %s format", name, datetimeLabel(fe.Param()))
	}
	return name + " is invalid"
}

func datetimeLabel(layout string) string {
	switch layout {
	case "2006-01-02":
		return "YYYY-MM-DD"
	case "15:04":
		return "HH:MM"
	}
	return layout
}
