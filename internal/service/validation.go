package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/support-tickets/internal/domain"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// newValidator returns a validator that knows the ticket enums and reports
// fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("ticket_status", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseTicketStatus(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("ticket_priority", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseTicketPriority(fl.Field().String())
		return ok
	})
	return v
}

// validationError converts validator output into a VALIDATION_FAILED
// error with one detail per offending field.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = describeRule(fe.Tag())
	}
	return apperrors.NewValidationError("invalid input", details)
}

// fieldPath drops the struct name prefix, e.g. "TicketCreateInput.tags[0]"
// becomes "tags[0]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describeRule(tag string) string {
	switch tag {
	case "notblank", "required":
		return "must not be empty"
	case "ticket_status":
		return "must be one of OPEN, IN_PROGRESS, WAITING_FOR_RESPONSE, RESOLVED, CLOSED"
	case "ticket_priority":
		return "must be one of LOW, NORMAL, HIGH, URGENT"
	case "max":
		return "too long"
	default:
		return "failed " + tag
	}
}
