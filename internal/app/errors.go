package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/cinex-booking/internal/domain"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
)

const (
	ErrInternalServer   = "The server encountered a problem and could not process your request"
	ErrNotFound         = "The requested resource not found"
	ErrMethodNotAllowed = "The method is not supported for this resource"
	ErrUnauthorized     = "You must be authenticated to access this resource"
	ErrForbidden        = "You do not have permission to access this resource"
	ErrInvalidPromotion = "The promotion code cannot be applied to this booking"
	ErrInvalidStatus    = "The booking cannot be changed in its current status"
	ErrFailedValidation = "Request validation failed"
)

const (
	codeSeatUnavailable   = "SEAT_UNAVAILABLE"
	codeSeatNotFound      = "SEAT_NOT_FOUND"
	codeInvalidPromotion  = "INVALID_PROMOTION"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeUnsupportedMethod = "UNSUPPORTED_PAYMENT_METHOD"
)

type ErrorResponse struct {
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	SeatNumber string    `json:"seatNumber,omitempty"`
	RequestId  string    `json:"requestId"`
	Timestamp  time.Time `json:"timestamp"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	Message          string            `json:"message"`
	ValidationErrors []ValidationError `json:"validationErrors"`
	RequestId        string            `json:"requestId"`
	Timestamp        time.Time         `json:"timestamp"`
}

func (app *Application) logError(r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.contextGetLogger(r).Error(err.Error(), "method", method, "uri", uri)
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	app.writeError(w, r, status, ErrorResponse{Message: message})
}

func (app *Application) writeError(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	resp.RequestId = middleware.GetReqID(r.Context())
	resp.Timestamp = time.Now()

	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)

	app.errorResponse(w, r, http.StatusInternalServerError, ErrInternalServer)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, ErrNotFound)
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) unauthorizedAccessResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusUnauthorized, ErrUnauthorized)
}

func (app *Application) forbiddenResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusForbidden, ErrForbidden)
}

func (app *Application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		app.badRequestResponse(w, r, err)
		return
	}

	resp := ValidationErrorResponse{
		Message:          ErrFailedValidation,
		ValidationErrors: make([]ValidationError, 0, len(validationErrs)),
		RequestId:        middleware.GetReqID(r.Context()),
		Timestamp:        time.Now(),
	}

	for _, fe := range validationErrs {
		resp.ValidationErrors = append(resp.ValidationErrors, ValidationError{
			Field: fe.Field(),
			Issue: appvalidator.ValidationMessage(fe),
		})
	}

	err = app.writeJSON(w, http.StatusUnprocessableEntity, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// bookingErrorResponse maps the errors of booking operations to responses.
func (app *Application) bookingErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logger := app.contextGetLogger(r)

	var seatErr *domain.SeatUnavailableError

	switch {
	case errors.As(err, &seatErr):
		logger.Warn("booking rejected: seat unavailable", "seat_number", seatErr.SeatNumber)
		app.writeError(w, r, http.StatusConflict, ErrorResponse{
			Message:    seatErr.Error(),
			Code:       codeSeatUnavailable,
			SeatNumber: seatErr.SeatNumber,
		})
	case errors.Is(err, domain.ErrSeatNotFound):
		app.writeError(w, r, http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
			Code:    codeSeatNotFound,
		})
	case errors.Is(err, domain.ErrInvalidPromotion):
		logger.Warn("booking rejected: promotion not applicable", "error", err)
		app.writeError(w, r, http.StatusUnprocessableEntity, ErrorResponse{
			Message: ErrInvalidPromotion,
			Code:    codeInvalidPromotion,
		})
	case errors.Is(err, domain.ErrUnsupportedPaymentMethod):
		app.writeError(w, r, http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
			Code:    codeUnsupportedMethod,
		})
	case errors.Is(err, domain.ErrInvalidTransition):
		app.writeError(w, r, http.StatusConflict, ErrorResponse{
			Message: ErrInvalidStatus,
			Code:    codeInvalidTransition,
		})
	case errors.Is(err, domain.ErrForbidden):
		logger.Warn("booking access denied")
		app.forbiddenResponse(w, r)
	case errors.Is(err, domain.ErrRecordNotFound):
		app.notFoundResponse(w, r)
	default:
		app.serverErrorResponse(w, r, fmt.Errorf("booking operation failed: %w", err))
	}
}
