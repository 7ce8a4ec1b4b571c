package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
)

// Input types accepted by the services. JSON names double as the field keys
// of validation errors.

type ResourceInput struct {
	Name     string `json:"name" validate:"min=3"`
	Type     int    `json:"type" validate:"resource_type"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

type CampaignInput struct {
	Title       string          `json:"title" validate:"min=10"`
	Description string          `json:"description" validate:"min=10"`
	Resources   []ResourceInput `json:"resources" validate:"dive"`
}

type AllocationInput struct {
	ResourceID string `json:"resource_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"min=1"`
}

type PledgeInput struct {
	Resources []AllocationInput `json:"resources" validate:"min=1,dive"`
	Message   string            `json:"message" validate:"min=12"`
}

type MessageInput struct {
	Message string `json:"message" validate:"min=12"`
}

type RegisterInput struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Password  string `json:"password" validate:"min=8"`
	Bio       string `json:"bio" validate:"max=1000"`
	DeviceID  string `json:"device_id" validate:"required"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"device_id" validate:"required"`
}

type StaffInput struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Password  string `json:"password" validate:"min=8"`
}

type ResetPasswordInput struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"min=8"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("resource_type", func(fl validator.FieldLevel) bool {
			return model.ResourceType(fl.Field().Int()).Valid()
		})
	})
	return validate
}

// validateInput runs the struct tags and converts failures into a
// validation AppError keyed by JSON path, e.g. "resources[0].quantity".
func validateInput(in interface{}) error {
	err := getValidator().Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate input: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		fields[path] = describe(fe)
	}
	return appErrors.NewValidation("invalid input", fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "resource_type":
		return "must be 0 (material) or 1 (human)"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}

// fieldError is a single-field validation failure.
func fieldError(field, message string) error {
	return appErrors.NewValidation("invalid input", map[string]string{field: message})
}
