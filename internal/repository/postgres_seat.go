package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type PostgresSeatRepository struct {
	db *pgxpool.Pool
}

func NewPostgresSeatRepository(db *pgxpool.Pool) *PostgresSeatRepository {
	return &PostgresSeatRepository{
		db: db,
	}
}

func (p *PostgresSeatRepository) GetSeatsByShowtime(ctx context.Context, showtimeID int) (*domain.ShowtimeSeats, error) {
	query := `
		SELECT
			sh.id,
			sh.movie_id,
			sh.start_time,
			ss.seat_number,
			ss.seat_row,
			ss.seat_type,
			ss.price,
			ss.status
		FROM showtimes sh
		JOIN showtime_seats ss
			ON ss.showtime_id = sh.id
		WHERE sh.id = $1
		ORDER BY ss.seat_row, length(ss.seat_number), ss.seat_number
	`

	rows, err := p.db.Query(ctx, query, showtimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var showtimeSeats *domain.ShowtimeSeats

	for rows.Next() {
		var (
			seat     domain.Seat
			showtime domain.ShowtimeSeats
		)

		err = rows.Scan(
			&showtime.ShowtimeID,
			&showtime.MovieID,
			&showtime.StartTime,
			&seat.Number,
			&seat.Row,
			&seat.Type,
			&seat.Price,
			&seat.Status,
		)
		if err != nil {
			return nil, err
		}

		if showtimeSeats == nil {
			showtimeSeats = &showtime
		}

		showtimeSeats.Seats = append(showtimeSeats.Seats, seat)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if showtimeSeats == nil {
		return nil, domain.ErrRecordNotFound
	}

	return showtimeSeats, nil
}

func (p *PostgresSeatRepository) UpdateSeatStatuses(
	ctx context.Context,
	showtimeID int,
	seatNumbers []string,
	from, to domain.SeatStatus) error {

	if len(seatNumbers) == 0 {
		return nil
	}

	query := `
		UPDATE showtime_seats
		SET status = $4, updated_at = NOW()
		WHERE showtime_id = $1 AND seat_number = ANY($2) AND status = $3
	`

	return runInTx(ctx, p.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, showtimeID, seatNumbers, string(from), string(to))
		if err != nil {
			return err
		}

		// a mismatch rolls the whole batch back
		if tag.RowsAffected() != int64(len(seatNumbers)) {
			return domain.ErrEditConflict
		}

		return nil
	})
}
