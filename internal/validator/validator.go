package validator

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

var (
	seatNumberRgx    = regexp.MustCompile(`^[A-Z]{1,2}[0-9]{1,3}$`)
	promotionCodeRgx = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)
)

func NewValidator() *validator.Validate {
	validator := validator.New(validator.WithRequiredStructEnabled())

	validator.RegisterValidation("seat_number", validateSeatNumber)
	validator.RegisterValidation("payment_method", validatePaymentMethod)
	validator.RegisterValidation("booking_status", validateBookingStatus)
	validator.RegisterValidation("promotion_code", validatePromotionCode)

	return validator
}

func validateSeatNumber(fl validator.FieldLevel) bool {
	return seatNumberRgx.MatchString(fl.Field().String())
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	return domain.PaymentMethod(fl.Field().String()).Valid()
}

func validateBookingStatus(fl validator.FieldLevel) bool {
	return domain.BookingStatus(fl.Field().String()).Valid()
}

func validatePromotionCode(fl validator.FieldLevel) bool {
	return promotionCodeRgx.MatchString(fl.Field().String())
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", err.Param())
	case "max":
		return fmt.Sprintf("must contain at most %s item(s)", err.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", err.Param())
	case "unique":
		return "must not contain duplicates"
	case "seat_number":
		return "must be a seat number such as A1 or BB12"
	case "payment_method":
		return "must be one of vnpay, momo or stripe"
	case "booking_status":
		return "must be one of pending, paid, cancelled or expired"
	case "promotion_code":
		return "must be 3 to 32 upper case letters, digits, dashes or underscores"
	default:
		return "is invalid"
	}
}
