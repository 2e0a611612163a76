package integration_test

import (
	"context"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orphanShowtimeID = 7

func (s *BookingTestSuite) TestBookingRepositoryOrphanedHolds() {
	t := s.T()
	ctx := context.Background()
	repo := repository.NewPostgresBookingRepository(s.app.DB)

	_, err := s.app.DB.Exec(ctx, `
		UPDATE showtime_seats SET status = 'held', updated_at = NOW() - INTERVAL '1 hour'
		WHERE showtime_id = $1 AND seat_number IN ('A1', 'A2')`, orphanShowtimeID)
	require.NoError(t, err)

	_, err = s.app.DB.Exec(ctx, `
		UPDATE showtime_seats SET status = 'held', updated_at = NOW()
		WHERE showtime_id = $1 AND seat_number = 'B1'`, orphanShowtimeID)
	require.NoError(t, err)

	price := decimal.NewFromInt(100000)
	owner := &domain.Booking{
		BookingCode:    "BK-20250114-OWNER1",
		UserID:         1,
		ShowtimeID:     orphanShowtimeID,
		Seats:          []domain.BookingSeat{{SeatNumber: "A2", Type: domain.SeatTypeStandard, Price: price}},
		TotalAmount:    price,
		DiscountAmount: decimal.Zero,
		FinalAmount:    price,
		PaymentMethod:  domain.PaymentMethodVNPay,
		Status:         domain.BookingStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Create(ctx, owner))

	holds, err := repo.GetOrphanedHolds(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	var got []string
	for _, h := range holds {
		if h.ShowtimeID == orphanShowtimeID {
			got = h.SeatNumbers
		}
	}

	// A2 belongs to a pending booking and B1 was held too recently
	assert.Equal(t, []string{"A1"}, got)

	err = repo.UpdateStatus(ctx, domain.BookingStatusUpdate{
		BookingID: owner.ID,
		From:      domain.BookingStatusPending,
		To:        domain.BookingStatusExpired,
	})
	require.NoError(t, err)

	holds, err = repo.GetOrphanedHolds(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Contains(t, holds, domain.OrphanedHold{ShowtimeID: orphanShowtimeID, SeatNumbers: []string{"A1", "A2"}})
}

func (s *BookingTestSuite) TestBookingRepositoryDuplicateCode() {
	t := s.T()
	ctx := context.Background()
	repo := repository.NewPostgresBookingRepository(s.app.DB)

	newBooking := func(seat string) *domain.Booking {
		price := decimal.NewFromInt(150000)
		return &domain.Booking{
			BookingCode:    "BK-20250114-TWIN01",
			UserID:         2,
			ShowtimeID:     orphanShowtimeID,
			Seats:          []domain.BookingSeat{{SeatNumber: seat, Type: domain.SeatTypeStandard, Price: price}},
			TotalAmount:    price,
			DiscountAmount: decimal.Zero,
			FinalAmount:    price,
			PaymentMethod:  domain.PaymentMethodVNPay,
			Status:         domain.BookingStatusPending,
			PaymentStatus:  domain.PaymentStatusPending,
			ExpiresAt:      time.Now().Add(time.Hour),
		}
	}

	require.NoError(t, repo.Create(ctx, newBooking("A3")))

	err := repo.Create(ctx, newBooking("A3"))
	assert.ErrorIs(t, err, domain.ErrDuplicateBookingCode)
}
