package app

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/shopspring/decimal"
)

type CreateBookingRequest struct {
	ShowtimeId    int      `json:"showtimeId" validate:"gt=0"`
	SeatNumbers   []string `json:"seatNumbers" validate:"required,min=1,max=10,unique,dive,seat_number"`
	PaymentMethod string   `json:"paymentMethod" validate:"required,payment_method"`
	PromotionCode *string  `json:"promotionCode,omitempty" validate:"omitnil,promotion_code"`
}

type BookingSeat struct {
	SeatNumber string          `json:"seatNumber"`
	Type       domain.SeatType `json:"type"`
	Price      decimal.Decimal `json:"price"`
}

type Booking struct {
	BookingId      int                  `json:"bookingId"`
	BookingCode    string               `json:"bookingCode"`
	ShowtimeId     int                  `json:"showtimeId"`
	Seats          []BookingSeat        `json:"seats"`
	TotalAmount    decimal.Decimal      `json:"totalAmount"`
	DiscountAmount decimal.Decimal      `json:"discountAmount"`
	FinalAmount    decimal.Decimal      `json:"finalAmount"`
	PaymentMethod  domain.PaymentMethod `json:"paymentMethod"`
	Status         domain.BookingStatus `json:"status"`
	PaymentStatus  domain.PaymentStatus `json:"paymentStatus"`
	ExpiresAt      time.Time            `json:"expiresAt"`
	PaidAt         *time.Time           `json:"paidAt,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
}

type CreateBookingResponse struct {
	Booking
	PaymentUrl string `json:"paymentUrl,omitempty"`
}

type Metadata struct {
	CurrentPage  int `json:"currentPage"`
	FirstPage    int `json:"firstPage"`
	LastPage     int `json:"lastPage"`
	PageSize     int `json:"pageSize"`
	TotalRecords int `json:"totalRecords"`
}

type BookingListResponse struct {
	Bookings []Booking `json:"bookings"`
	Metadata Metadata  `json:"metadata"`
}

func (app *Application) CreateBooking(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)
	identity := app.mustIdentity(r)

	var input CreateBookingRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	result, err := app.bookings.Create(r.Context(), booking.CreateBookingInput{
		ShowtimeID:    input.ShowtimeId,
		UserID:        identity.UserID,
		SeatNumbers:   input.SeatNumbers,
		PaymentMethod: domain.PaymentMethod(input.PaymentMethod),
		PromotionCode: input.PromotionCode,
		ClientIP:      clientIP(r),
	})
	if err != nil {
		app.bookingErrorResponse(w, r, err)
		return
	}

	logger.Info("booking created", "booking_id", result.Booking.ID, "status", result.Booking.Status)

	resp := CreateBookingResponse{
		Booking:    toApiBooking(result.Booking),
		PaymentUrl: result.PaymentURL,
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/v1/bookings/%d", result.Booking.ID))

	err = app.writeJSON(w, http.StatusCreated, resp, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetBooking(w http.ResponseWriter, r *http.Request) {
	identity := app.mustIdentity(r)

	bookingID, err := readIDParam(r, "bookingId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	b, err := app.bookingRepo.GetById(r.Context(), bookingID)
	if err != nil {
		app.bookingErrorResponse(w, r, err)
		return
	}

	if b.UserID != identity.UserID {
		app.contextGetLogger(r).Warn("booking requested by non-owner", "booking_id", bookingID)
		app.forbiddenResponse(w, r)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toApiBooking(b), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetBookingsOfUser(w http.ResponseWriter, r *http.Request) {
	identity := app.mustIdentity(r)

	pagination, err := readPagination(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var status *domain.BookingStatus
	if s := r.URL.Query().Get("status"); s != "" {
		bs := domain.BookingStatus(s)
		if !bs.Valid() {
			app.badRequestResponse(w, r, errors.New("status must be one of pending, paid, cancelled or expired"))
			return
		}
		status = &bs
	}

	bookings, metadata, err := app.bookingRepo.GetByUserId(r.Context(), identity.UserID, status, pagination)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := BookingListResponse{
		Bookings: make([]Booking, 0, len(bookings)),
		Metadata: Metadata(*metadata),
	}

	for i := range bookings {
		resp.Bookings = append(resp.Bookings, toApiBooking(&bookings[i]))
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) CancelBooking(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)
	identity := app.mustIdentity(r)

	bookingID, err := readIDParam(r, "bookingId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	b, err := app.bookings.Cancel(r.Context(), bookingID, identity.UserID)
	if err != nil {
		app.bookingErrorResponse(w, r, err)
		return
	}

	logger.Info("booking cancelled", "booking_id", b.ID, "payment_status", b.PaymentStatus)

	err = app.writeJSON(w, http.StatusOK, toApiBooking(b), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toApiBooking(b *domain.Booking) Booking {
	seats := make([]BookingSeat, 0, len(b.Seats))
	for _, s := range b.Seats {
		seats = append(seats, BookingSeat{SeatNumber: s.SeatNumber, Type: s.Type, Price: s.Price})
	}

	return Booking{
		BookingId:      b.ID,
		BookingCode:    b.BookingCode,
		ShowtimeId:     b.ShowtimeID,
		Seats:          seats,
		TotalAmount:    b.TotalAmount,
		DiscountAmount: b.DiscountAmount,
		FinalAmount:    b.FinalAmount,
		PaymentMethod:  b.PaymentMethod,
		Status:         b.Status,
		PaymentStatus:  b.PaymentStatus,
		ExpiresAt:      b.ExpiresAt,
		PaidAt:         b.PaidAt,
		CreatedAt:      b.CreatedAt,
	}
}

// clientIP expects middleware.RealIP to have normalised RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}

	return host
}
