package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/metinatakli/cinex-booking/internal/auth"
	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/mocks"
	"github.com/metinatakli/cinex-booking/internal/payment"
	"github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testSecret      = "test-secret"
	testUserId      = 3
	testDisplayName = "Ada"
)

type mockBookingService struct {
	mock.Mock
}

func (m *mockBookingService) Create(ctx context.Context, input booking.CreateBookingInput) (*booking.CreateResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.CreateResult), args.Error(1)
}

func (m *mockBookingService) ApplyPaymentResult(ctx context.Context, outcome domain.PaymentOutcome) (*domain.Booking, error) {
	args := m.Called(ctx, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *mockBookingService) Cancel(ctx context.Context, bookingID, userID int) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type stubSeatMap struct {
	seats *domain.ShowtimeSeats
	err   error
}

func (s stubSeatMap) Snapshot(context.Context, int) (*domain.ShowtimeSeats, error) {
	return s.seats, s.err
}

type stubContention []domain.SeatContention

func (s stubContention) Snapshot(int) []domain.SeatContention {
	return s
}

func newTestApplication(opts ...func(*Application)) *Application {
	app := &Application{
		config:         Config{Env: "test"},
		validator:      validator.NewValidator(),
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessionManager: scs.New(),
		tokens:         auth.NewTokenVerifier(testSecret),
		seats:          stubSeatMap{err: domain.ErrRecordNotFound},
		contention:     stubContention(nil),
		bookings:       &mockBookingService{},
		bookingRepo:    &mocks.MockBookingRepo{},
		providers:      payment.NewProviders(),
	}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

func bearerToken(t *testing.T, userId int) string {
	t.Helper()

	token, err := auth.NewTokenVerifier(testSecret).Issue(domain.Identity{UserID: userId, DisplayName: testDisplayName}, time.Hour)
	require.NoError(t, err)

	return "Bearer " + token
}

func executeRequest(t *testing.T, method, url string, body any) (*httptest.ResponseRecorder, *http.Request) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(jsonData)
	}

	r := httptest.NewRequest(method, url, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	return w, r
}

// executeAuthenticated sends the request through the full router as testUserId.
func executeAuthenticated(t *testing.T, app *Application, method, url string, body any) *httptest.ResponseRecorder {
	w, r := executeRequest(t, method, url, body)
	r.Header.Set("Authorization", bearerToken(t, testUserId))

	app.Routes().ServeHTTP(w, r)

	return w
}

func checkErrorResponse(t *testing.T, w *httptest.ResponseRecorder, tt struct {
	wantStatus     int
	wantErrMessage string
}) {
	if tt.wantStatus >= 200 && tt.wantStatus < 300 {
		return
	}

	switch tt.wantStatus {
	case http.StatusUnprocessableEntity:
		var validationResp ValidationErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&validationResp); err != nil {
			t.Fatalf("Failed to decode validation error response: %v", err)
		}

		if validationResp.Message != ErrFailedValidation {
			if tt.wantErrMessage != "" && validationResp.Message != tt.wantErrMessage {
				t.Errorf("Error message = %v, want %v", validationResp.Message, tt.wantErrMessage)
			}
			return
		}

		errorSet := make(map[string]bool)
		for _, vErr := range validationResp.ValidationErrors {
			errorSet[vErr.Issue] = true
		}

		if !errorSet[tt.wantErrMessage] {
			t.Errorf("Expected validation error message '%s' not found in response", tt.wantErrMessage)
		}

	default:
		var errorResp ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&errorResp); err != nil {
			t.Fatalf("Failed to decode error response: %v", err)
		}

		if tt.wantErrMessage != "" && errorResp.Message != tt.wantErrMessage {
			t.Errorf("Error message = %v, want %v", errorResp.Message, tt.wantErrMessage)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
