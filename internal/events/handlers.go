package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/mailer"
)

const (
	confirmationTemplate = "booking_confirmation.tmpl"
	cancellationTemplate = "booking_cancelled.tmpl"
)

func handleSendBookingConfirmation(
	users domain.UserRepository,
	m mailer.Mailer,
	fallback *slog.Logger) func(ctx context.Context, event *BookingPaid) error {

	return func(ctx context.Context, event *BookingPaid) error {
		logger := loggerFromContext(ctx, fallback).With("booking_id", event.BookingID)

		user, err := users.GetById(ctx, event.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrRecordNotFound) {
				logger.Warn("skipping confirmation for unknown user", "user_id", event.UserID)
				return nil
			}
			return fmt.Errorf("loading user %d: %w", event.UserID, err)
		}

		data := map[string]any{
			"name":        user.FullName(),
			"bookingCode": event.BookingCode,
			"showtimeId":  event.ShowtimeID,
			"seats":       event.SeatNumbers,
			"finalAmount": event.FinalAmount,
		}

		err = m.Send(user.Email, confirmationTemplate, data)
		if err != nil {
			return fmt.Errorf("sending confirmation for booking %d: %w", event.BookingID, err)
		}

		logger.Info("booking confirmation sent")

		return nil
	}
}

func handleSendBookingCancellation(
	users domain.UserRepository,
	m mailer.Mailer,
	fallback *slog.Logger) func(ctx context.Context, event *BookingCancelled) error {

	return func(ctx context.Context, event *BookingCancelled) error {
		logger := loggerFromContext(ctx, fallback).With("booking_id", event.BookingID)

		user, err := users.GetById(ctx, event.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrRecordNotFound) {
				logger.Warn("skipping cancellation notice for unknown user", "user_id", event.UserID)
				return nil
			}
			return fmt.Errorf("loading user %d: %w", event.UserID, err)
		}

		data := map[string]any{
			"name":        user.FullName(),
			"bookingCode": event.BookingCode,
			"seats":       event.SeatNumbers,
			"reason":      event.Reason,
		}

		err = m.Send(user.Email, cancellationTemplate, data)
		if err != nil {
			return fmt.Errorf("sending cancellation notice for booking %d: %w", event.BookingID, err)
		}

		return nil
	}
}
