package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

const bookingColumns = `
	b.id,
	b.booking_code,
	b.user_id,
	b.showtime_id,
	b.total_amount,
	b.discount_amount,
	b.final_amount,
	b.promotion_id,
	b.payment_method,
	b.status,
	b.payment_status,
	b.provider_reference,
	b.expires_at,
	b.paid_at,
	b.created_at,
	b.updated_at
`

type PostgresBookingRepository struct {
	db *pgxpool.Pool
}

func NewPostgresBookingRepository(db *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{
		db: db,
	}
}

func (p *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO bookings (
				booking_code,
				user_id,
				showtime_id,
				total_amount,
				discount_amount,
				final_amount,
				promotion_id,
				payment_method,
				status,
				payment_status,
				expires_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(
			ctx,
			query,
			booking.BookingCode,
			booking.UserID,
			booking.ShowtimeID,
			booking.TotalAmount,
			booking.DiscountAmount,
			booking.FinalAmount,
			booking.PromotionID,
			booking.PaymentMethod,
			booking.Status,
			booking.PaymentStatus,
			booking.ExpiresAt,
		).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)

		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch {
				case pgErr.Code == pgerrcode.ForeignKeyViolation:
					return domain.ErrRecordNotFound
				case pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == "bookings_booking_code_key":
					return domain.ErrDuplicateBookingCode
				}
			}

			return err
		}

		rows := make([][]any, 0, len(booking.Seats))
		for _, seat := range booking.Seats {
			var price pgtype.Numeric
			if err := price.Scan(seat.Price.String()); err != nil {
				return err
			}

			rows = append(rows, []any{
				booking.ID,
				booking.ShowtimeID,
				seat.SeatNumber,
				string(seat.Type),
				price,
			})
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"booking_seats"},
			[]string{"booking_id", "showtime_id", "seat_number", "seat_type", "price"},
			pgx.CopyFromRows(rows),
		)

		return err
	})
}

func (p *PostgresBookingRepository) GetById(ctx context.Context, id int) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1`

	booking, err := scanBooking(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	bookings := []domain.Booking{*booking}
	if err := p.attachSeats(ctx, bookings); err != nil {
		return nil, err
	}

	return &bookings[0], nil
}

func (p *PostgresBookingRepository) GetByUserId(
	ctx context.Context,
	userId int,
	status *domain.BookingStatus,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	query := `
		SELECT COUNT(*) OVER(), ` + bookingColumns + `
		FROM bookings b
		WHERE b.user_id = $1 AND ($2::text IS NULL OR b.status = $2)
		ORDER BY b.created_at DESC, b.id DESC
		LIMIT $3 OFFSET $4
	`

	var statusFilter *string
	if status != nil {
		s := string(*status)
		statusFilter = &s
	}

	rows, err := p.db.Query(ctx, query, userId, statusFilter, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	totalRecords := 0

	for rows.Next() {
		var b domain.Booking

		err := rows.Scan(append([]any{&totalRecords}, bookingFields(&b)...)...)
		if err != nil {
			return nil, nil, err
		}

		bookings = append(bookings, b)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := p.attachSeats(ctx, bookings); err != nil {
		return nil, nil, err
	}

	metadata := domain.NewMetadata(totalRecords, pagination.Page, pagination.PageSize)

	return bookings, metadata, nil
}

func (p *PostgresBookingRepository) UpdateStatus(ctx context.Context, update domain.BookingStatusUpdate) error {
	query := `
		UPDATE bookings
		SET
			status = $3,
			payment_status = COALESCE($4, payment_status),
			provider_reference = COALESCE($5, provider_reference),
			paid_at = COALESCE($6, paid_at),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	var paymentStatus *string
	if update.PaymentStatus != "" {
		s := string(update.PaymentStatus)
		paymentStatus = &s
	}

	tag, err := p.db.Exec(
		ctx,
		query,
		update.BookingID,
		string(update.From),
		string(update.To),
		paymentStatus,
		update.ProviderReference,
		update.PaidAt,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, update.BookingID).Scan(&exists)
	if err != nil {
		return err
	}

	if !exists {
		return domain.ErrRecordNotFound
	}

	return domain.ErrInvalidTransition
}

func (p *PostgresBookingRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		WHERE b.status = 'pending' AND b.expires_at < $1
		ORDER BY b.expires_at
		LIMIT $2
	`

	rows, err := p.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)

	for rows.Next() {
		var b domain.Booking

		if err := rows.Scan(bookingFields(&b)...); err != nil {
			return nil, err
		}

		bookings = append(bookings, b)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if err := p.attachSeats(ctx, bookings); err != nil {
		return nil, err
	}

	return bookings, nil
}

func (p *PostgresBookingRepository) GetOrphanedHolds(ctx context.Context, heldBefore time.Time) ([]domain.OrphanedHold, error) {
	query := `
		SELECT ss.showtime_id, array_agg(ss.seat_number ORDER BY ss.seat_number)
		FROM showtime_seats ss
		WHERE ss.status = 'held' AND ss.updated_at < $1
			AND NOT EXISTS (
				SELECT 1
				FROM booking_seats bs
				JOIN bookings b ON b.id = bs.booking_id
				WHERE bs.showtime_id = ss.showtime_id
					AND bs.seat_number = ss.seat_number
					AND b.status = 'pending'
			)
		GROUP BY ss.showtime_id
		ORDER BY ss.showtime_id
	`

	rows, err := p.db.Query(ctx, query, heldBefore)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var holds []domain.OrphanedHold

	for rows.Next() {
		var h domain.OrphanedHold

		if err := rows.Scan(&h.ShowtimeID, &h.SeatNumbers); err != nil {
			return nil, err
		}

		holds = append(holds, h)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return holds, nil
}

func (p *PostgresBookingRepository) attachSeats(ctx context.Context, bookings []domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	ids := make([]int, len(bookings))
	index := make(map[int]int, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		index[b.ID] = i
	}

	query := `
		SELECT booking_id, seat_number, seat_type, price
		FROM booking_seats
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, seat_number
	`

	rows, err := p.db.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			bookingID int
			seat      domain.BookingSeat
		)

		if err := rows.Scan(&bookingID, &seat.SeatNumber, &seat.Type, &seat.Price); err != nil {
			return err
		}

		i := index[bookingID]
		bookings[i].Seats = append(bookings[i].Seats, seat)
	}

	return rows.Err()
}

func bookingFields(b *domain.Booking) []any {
	return []any{
		&b.ID,
		&b.BookingCode,
		&b.UserID,
		&b.ShowtimeID,
		&b.TotalAmount,
		&b.DiscountAmount,
		&b.FinalAmount,
		&b.PromotionID,
		&b.PaymentMethod,
		&b.Status,
		&b.PaymentStatus,
		&b.ProviderReference,
		&b.ExpiresAt,
		&b.PaidAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	}
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking

	if err := row.Scan(bookingFields(&b)...); err != nil {
		return nil, err
	}

	return &b, nil
}

func runInTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	var txOptions pgx.TxOptions

	tx, err := db.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err == nil {
		return tx.Commit(ctx)
	}

	rollbackErr := tx.Rollback(ctx)
	if rollbackErr != nil {
		return errors.Join(err, rollbackErr)
	}

	return err
}
