package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"serein/pkg/logger"
	"serein/pkg/model"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// intakeRequired lists the service types that may not be booked before the
// client completes the intake questionnaire.
var intakeRequired = map[string]struct{}{
	"initial_consultation": {},
	"psychiatric_intake":   {},
}

// RequiresIntake reports whether a service type is behind the intake gate.
func RequiresIntake(serviceType string) bool {
	_, ok := intakeRequired[serviceType]
	return ok
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
	now      func() time.Time
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("valid_wallclock", validateWallClock); err != nil {
		log.Fatal("Failed to register 'valid_wallclock' validator", "error", err)
	}

	log.Info("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
		now:      time.Now,
	}
}

// SetClock overrides the validator's time source. Tests use it to pin
// "the future" to a known instant.
func (v *BookingValidator) SetClock(now func() time.Time) {
	v.now = now
}

func validateWallClock(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	if value == "" {
		return false
	}
	if _, err := time.Parse("15:04", value); err != nil {
		return false
	}
	return true
}

// Validate runs the struct tags plus the rules tags cannot express: the
// session must be in the future, start on a whole minute, and a service
// type behind the intake gate needs a completed questionnaire. On failure
// nothing downstream runs; validation errors never reach storage.
func (v *BookingValidator) Validate(req *model.BookingRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	var extra ValidationErrors
	if !req.ScheduledAt.After(v.now()) {
		extra = append(extra, ValidationError{
			Field:   "scheduled_at",
			Message: "scheduled_at must be in the future",
		})
	}
	if !req.ScheduledAt.Equal(req.ScheduledAt.Truncate(time.Minute)) {
		extra = append(extra, ValidationError{
			Field:   "scheduled_at",
			Message: "scheduled_at must start on a whole minute",
		})
	}
	if _, gated := intakeRequired[req.ServiceType]; gated && !req.QuestionnaireDone {
		extra = append(extra, ValidationError{
			Field:   "questionnaire_done",
			Message: fmt.Sprintf("service type %q requires a completed intake questionnaire", req.ServiceType),
		})
	}
	if len(extra) > 0 {
		return extra
	}

	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "valid_wallclock":
			message = fmt.Sprintf("%s must be in HH:MM 24-hour format", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
