package mocks

import (
	"context"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockBookingRepo struct {
	mock.Mock
	domain.BookingRepository
}

func (m *MockBookingRepo) Create(ctx context.Context, booking *domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *MockBookingRepo) GetById(ctx context.Context, id int) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepo) GetByUserId(
	ctx context.Context,
	userId int,
	status *domain.BookingStatus,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	args := m.Called(ctx, userId, status, pagination)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]domain.Booking), args.Get(1).(*domain.Metadata), args.Error(2)
}

func (m *MockBookingRepo) UpdateStatus(ctx context.Context, update domain.BookingStatusUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

func (m *MockBookingRepo) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepo) GetOrphanedHolds(ctx context.Context, heldBefore time.Time) ([]domain.OrphanedHold, error) {
	args := m.Called(ctx, heldBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OrphanedHold), args.Error(1)
}
