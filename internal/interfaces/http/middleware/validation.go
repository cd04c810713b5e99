package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// Ledger validation tags usable in binding:"..." struct tags
const (
	TagPaymentMethod = "payment_method"
	TagDecimalGT0    = "decimal_gt0"
)

// SetupValidator installs the ledger tags on gin's default validator
func SetupValidator() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return RegisterValidators(v)
}

// RegisterValidators makes field errors report JSON (or form) names and
// adds the ledger tags to v
func RegisterValidators(v *validator.Validate) error {
	v.RegisterTagNameFunc(fieldName)
	for tag, fn := range map[string]validator.Func{
		TagPaymentMethod: isPaymentMethod,
		TagDecimalGT0:    isPositiveDecimal,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}

func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		switch name {
		case "-":
			return ""
		case "":
			continue
		}
		return name
	}
	return ""
}

// isPaymentMethod accepts Cash, Bank and Mobile Money in the spellings
// fees.ParsePaymentMethod knows
func isPaymentMethod(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	_, ok := fees.ParsePaymentMethod(fl.Field().String())
	return ok
}

// isPositiveDecimal accepts a decimal string strictly above zero. Amounts
// travel as strings so no float ever touches them.
func isPositiveDecimal(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	return err == nil && d.IsPositive()
}

// HandleValidationError answers 400 VALIDATION_ERROR with one detail per
// failed field
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details = make([]dto.ValidationDetail, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, dto.ValidationDetail{
				Field:   fe.Field(),
				Message: fieldMessage(fe),
				Tag:     fe.Tag(),
			})
		}
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

var tagMessages = map[string]func(validator.FieldError) string{
	"required": func(validator.FieldError) string { return "This field is required" },
	"min":      func(fe validator.FieldError) string { return "Must be at least " + fe.Param() + lengthUnit(fe) },
	"max":      func(fe validator.FieldError) string { return "Must be at most " + fe.Param() + lengthUnit(fe) },
	"uuid":     func(validator.FieldError) string { return "Invalid UUID format" },
	"oneof":    func(fe validator.FieldError) string { return "Must be one of: " + fe.Param() },
	"gt":       func(fe validator.FieldError) string { return "Must be greater than " + fe.Param() },
	"datetime": func(fe validator.FieldError) string { return "Must be a date in " + fe.Param() + " format" },
	"dive":     func(validator.FieldError) string { return "Invalid list element" },

	TagPaymentMethod: func(validator.FieldError) string { return "Must be one of: Cash, Bank, Mobile Money" },
	TagDecimalGT0:    func(validator.FieldError) string { return "Must be a decimal amount greater than zero" },
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := tagMessages[fe.Tag()]; ok {
		return msg(fe)
	}
	return "Invalid value"
}

func lengthUnit(fe validator.FieldError) string {
	if fe.Kind() == reflect.String {
		return " characters"
	}
	return ""
}
