package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"recordshop/internal/core/apperror"
	"recordshop/internal/domain/records"
)

var registerOnce sync.Once

// RegisterValidators adds the record_format and record_category tags to
// gin's validator and reports field names by their json/form tag.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, key := range []string{"json", "form"} {
				if tag := strings.SplitN(f.Tag.Get(key), ",", 2)[0]; tag != "" && tag != "-" {
					return tag
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("record_format", func(fl validator.FieldLevel) bool {
			return records.Format(fl.Field().String()).IsValid()
		})
		_ = v.RegisterValidation("record_category", func(fl validator.FieldLevel) bool {
			return records.Category(fl.Field().String()).IsValid()
		})
	})
}

// ValidationError converts a binding error into a VALIDATION_ERROR with one
// message per offending field.
func ValidationError(message string, err error) *apperror.AppError {
	appErr := apperror.NewValidation(message)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErr.WithDetail("error", err.Error())
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = validationMessage(fe)
	}
	return appErr.WithDetail("fields", fields)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "record_format":
		return fmt.Sprintf("must be one of %v", records.Formats())
	case "record_category":
		return fmt.Sprintf("must be one of %v", records.Categories())
	}
	return "is invalid"
}
