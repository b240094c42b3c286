package utils

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"clinic-portal-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// Validator returns gin's validator with the portal's custom tags registered:
// "role" (a known models.Role, any case), "date" (YYYY-MM-DD) and
// "clock" (HH:MM).
func Validator() *validator.Validate {
	v, _ := binding.Validator.Engine().(*validator.Validate)
	registerOnce.Do(func() {
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			_, err := models.ParseRole(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("date", layoutValidator(models.DateLayout))
		_ = v.RegisterValidation("clock", layoutValidator(models.TimeLayout))
	})
	return v
}

func layoutValidator(layout string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		_, err := time.Parse(layout, fl.Field().String())
		return err == nil
	}
}

// Validate performs validation on a struct using its binding tags.
func Validate(s interface{}) error {
	return Validator().Struct(s)
}

// FormatValidationError formats validation errors into a readable string.
func FormatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}

	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, describeField(e))
	}
	return strings.Join(messages, ", ")
}

func describeField(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", e.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", e.Field(), e.Param())
	case "role":
		return fmt.Sprintf("%s is not a known role", e.Field())
	case "date":
		return fmt.Sprintf("%s must be formatted YYYY-MM-DD", e.Field())
	case "clock":
		return fmt.Sprintf("%s must be formatted HH:MM", e.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", e.Field(), e.Tag())
	}
}

// BindAndValidate binds the request body to a struct and validates it.
// If validation fails, it sends a BadRequest response and returns false.
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	Validator()

	if err := c.ShouldBindJSON(obj); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			BadRequest(c, "Validation failed: "+FormatValidationError(err))
		} else {
			BadRequest(c, "Invalid request payload")
		}
		return false
	}
	return true
}
