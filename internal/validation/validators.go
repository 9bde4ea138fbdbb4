package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/dayplan/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums and calendar values
	if err := Validate.RegisterValidation("recurrence_rule", validateRecurrenceRule); err != nil {
		panic(fmt.Sprintf("failed to register recurrence_rule validator: %v", err))
	}
	if err := Validate.RegisterValidation("visibility", validateVisibility); err != nil {
		panic(fmt.Sprintf("failed to register visibility validator: %v", err))
	}
	if err := Validate.RegisterValidation("clock_time", validateClockTime); err != nil {
		panic(fmt.Sprintf("failed to register clock_time validator: %v", err))
	}
	if err := Validate.RegisterValidation("calendar_date", validateCalendarDate); err != nil {
		panic(fmt.Sprintf("failed to register calendar_date validator: %v", err))
	}
	if err := Validate.RegisterValidation("priority", validatePriority); err != nil {
		panic(fmt.Sprintf("failed to register priority validator: %v", err))
	}
}

// validateRecurrenceRule accepts every rule the evaluator knows, including custom
func validateRecurrenceRule(fl validator.FieldLevel) bool {
	return models.RecurrenceRule(fl.Field().String()).IsKnown()
}

func validateVisibility(fl validator.FieldLevel) bool {
	_, err := models.ParseVisibility(fl.Field().String())
	return err == nil
}

// validateClockTime validates "HH:MM" or "HH:MM:SS"
func validateClockTime(fl validator.FieldLevel) bool {
	_, err := models.ParseClockTime(fl.Field().String())
	return err == nil
}

// validateCalendarDate validates "YYYY-MM-DD"
func validateCalendarDate(fl validator.FieldLevel) bool {
	_, err := models.ParseDate(fl.Field().String())
	return err == nil
}

func validatePriority(fl validator.FieldLevel) bool {
	switch models.Priority(fl.Field().String()) {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent:
		return true
	default:
		return false
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// FormatErrors renders validator errors as "field: reason" pairs
func FormatErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s: is required", field))
		case "recurrence_rule":
			parts = append(parts, fmt.Sprintf("%s: must be one of %s", field, strings.Join(ruleNames(), ", ")))
		case "visibility":
			parts = append(parts, fmt.Sprintf("%s: must be 'private' or 'workspace'", field))
		case "clock_time":
			parts = append(parts, fmt.Sprintf("%s: must be HH:MM", field))
		case "calendar_date":
			parts = append(parts, fmt.Sprintf("%s: must be YYYY-MM-DD", field))
		case "priority":
			parts = append(parts, fmt.Sprintf("%s: must be low, medium, high or urgent", field))
		default:
			parts = append(parts, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func ruleNames() []string {
	names := make([]string, 0, len(models.RecurrenceRules))
	for _, r := range models.RecurrenceRules {
		names = append(names, string(r))
	}
	return names
}
