package validators

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"ridestore/internal/models"
	"ridestore/internal/utils"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(jsonFieldName)

	// Register custom validation functions
	validate.RegisterValidation("phone_number", validatePhoneNumber)
	validate.RegisterValidation("license_plate", validateLicensePlate)
	validate.RegisterValidation("cents", validateCents)
	validate.RegisterValidation("ride_status", validateRideStatus)
	validate.RegisterValidation("incident_status", validateIncidentStatus)
	validate.RegisterValidation("payment_status", validatePaymentStatus)
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Rule    string `json:"rule,omitempty"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Violations converts field errors on a row of table into store violations.
func (v ValidationErrors) Violations(table models.Table, key models.Key) []utils.Violation {
	violations := make([]utils.Violation, 0, len(v))
	for _, err := range v {
		violations = append(violations, utils.Violation{
			Rule:    err.Rule,
			Table:   string(table),
			Key:     key.String(),
			Field:   err.Field,
			Value:   err.Value,
			Message: err.Message,
		})
	}
	return violations
}

// ValidateStruct validates a struct and returns detailed errors. When s is a
// row, each error carries the rule name "<table>.<rule>".
func ValidateStruct(s interface{}) ValidationErrors {
	var validationErrors ValidationErrors

	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return ValidationErrors{{Field: "", Tag: "invalid", Message: err.Error()}}
	}

	var table models.Table
	if rec, ok := s.(models.Record); ok {
		table = rec.TableName()
	}
	structType := reflect.Indirect(reflect.ValueOf(s)).Type()

	for _, fe := range fieldErrors {
		validationError := ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   formatValue(fe.Value()),
			Message: getErrorMessage(fe),
		}
		if table != "" {
			validationError.Rule = ruleName(table, structType, fe)
		}
		validationErrors = append(validationErrors, validationError)
	}

	return validationErrors
}

// ValidateRecord runs the row rules for rec's table.
func ValidateRecord(rec models.Record) ValidationErrors {
	return ValidateStruct(rec)
}

// ruleName resolves the rule for a failed tag. "required" always maps to
// "<field>_required"; otherwise a `rule` struct tag wins over the generic
// "<field>_<suffix>" form.
func ruleName(table models.Table, structType reflect.Type, fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return fmt.Sprintf("%s.%s_required", table, fe.Field())
	}
	if sf, ok := structType.FieldByName(fe.StructField()); ok {
		if rule := sf.Tag.Get("rule"); rule != "" {
			return fmt.Sprintf("%s.%s", table, rule)
		}
	}
	return fmt.Sprintf("%s.%s_%s", table, fe.Field(), tagSuffix(fe))
}

func tagSuffix(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "positive"
	case "min", "max", "gte", "lte":
		if fe.Kind() == reflect.String {
			return "length"
		}
		return "range"
	case "email", "phone_number", "license_plate":
		return "format"
	case "cents":
		return "precision"
	case "gtfield":
		return "order"
	default:
		return fe.Tag()
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func formatValue(v interface{}) string {
	switch value := v.(type) {
	case time.Time:
		if value.IsZero() {
			return ""
		}
		return value.Format(time.RFC3339)
	case float64:
		return utils.FormatAmount(value)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "email":
		return "Invalid email format"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), paramOrZero(err))
	case "gte":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "min":
		if err.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
		}
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		if err.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		}
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be after %s", err.Field(), toSnake(err.Param()))
	case "phone_number":
		return "Invalid phone number format"
	case "license_plate":
		return "Invalid license plate format"
	case "cents":
		return fmt.Sprintf("%s must have at most two decimal places", err.Field())
	case "ride_status":
		return fmt.Sprintf("status must be one of %s", joinStatuses(models.RideStatuses))
	case "incident_status":
		return "status must be one of Reported, Investigating, Resolved"
	case "payment_status":
		return "status must be one of Pending, Completed, Failed, Refunded"
	default:
		return fmt.Sprintf("Validation failed for %s", err.Field())
	}
}

func paramOrZero(err validator.FieldError) string {
	if err.Param() == "" {
		return "0"
	}
	return err.Param()
}

// toSnake turns a Go field name such as StartTime into start_time.
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func joinStatuses(statuses []models.RideStatus) string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// Custom validation functions
func validatePhoneNumber(fl validator.FieldLevel) bool {
	phone := fl.Field().String()
	if phone == "" {
		return true
	}
	return utils.IsValidPhone(phone)
}

var plateRegex = regexp.MustCompile(`^[A-Z0-9\-\s]{2,10}$`)

func validateLicensePlate(fl validator.FieldLevel) bool {
	plate := fl.Field().String()
	if plate == "" {
		return true
	}

	// Basic license plate validation - can be customized per region
	return plateRegex.MatchString(strings.ToUpper(plate))
}

func validateCents(fl validator.FieldLevel) bool {
	return utils.HasCentPrecision(fl.Field().Float())
}

func validateRideStatus(fl validator.FieldLevel) bool {
	return models.RideStatus(fl.Field().String()).Valid()
}

func validateIncidentStatus(fl validator.FieldLevel) bool {
	return models.IncidentStatus(fl.Field().String()).Valid()
}

func validatePaymentStatus(fl validator.FieldLevel) bool {
	return models.PaymentStatus(fl.Field().String()).Valid()
}
