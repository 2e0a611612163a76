package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type PostgresPromotionRepository struct {
	db *pgxpool.Pool
}

func NewPostgresPromotionRepository(db *pgxpool.Pool) *PostgresPromotionRepository {
	return &PostgresPromotionRepository{
		db: db,
	}
}

// GetByCode matches the code case-insensitively.
func (p *PostgresPromotionRepository) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	query := `
		SELECT
			p.id,
			p.code,
			p.discount_type,
			p.discount_value,
			p.min_order_value,
			p.max_discount,
			p.usage_limit,
			p.times_used,
			p.start_date,
			p.end_date,
			p.is_active,
			COALESCE((SELECT array_agg(pm.movie_id) FROM promotion_movies pm WHERE pm.promotion_id = p.id), '{}'),
			COALESCE((SELECT array_agg(ps.showtime_id) FROM promotion_showtimes ps WHERE ps.promotion_id = p.id), '{}')
		FROM promotions p
		WHERE upper(p.code) = upper($1)
	`

	var promotion domain.Promotion

	err := p.db.QueryRow(ctx, query, code).Scan(
		&promotion.ID,
		&promotion.Code,
		&promotion.Type,
		&promotion.Value,
		&promotion.MinOrderValue,
		&promotion.MaxDiscount,
		&promotion.UsageLimit,
		&promotion.TimesUsed,
		&promotion.StartDate,
		&promotion.EndDate,
		&promotion.Active,
		&promotion.ApplicableMovies,
		&promotion.ApplicableShowtimes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return &promotion, nil
}

// IncrementUsage fails with ErrEditConflict once the usage limit is reached.
func (p *PostgresPromotionRepository) IncrementUsage(ctx context.Context, id int) error {
	query := `
		UPDATE promotions
		SET times_used = times_used + 1
		WHERE id = $1 AND (usage_limit IS NULL OR times_used < usage_limit)
	`

	tag, err := p.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrEditConflict
	}

	return nil
}
