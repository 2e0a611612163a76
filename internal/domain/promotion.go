package domain

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

type Promotion struct {
	ID                  int
	Code                string
	Type                DiscountType
	Value               decimal.Decimal
	MinOrderValue       decimal.Decimal
	MaxDiscount         *decimal.Decimal
	UsageLimit          *int
	TimesUsed           int
	StartDate           time.Time
	EndDate             time.Time
	Active              bool
	ApplicableMovies    []int
	ApplicableShowtimes []int
}

// PromotionContext is the order a promotion is evaluated against.
type PromotionContext struct {
	OrderValue decimal.Decimal
	MovieID    int
	ShowtimeID int
	Now        time.Time
}

// IsApplicable checks every rule of the promotion against the order. Empty
// movie and showtime lists mean the promotion is not restricted.
func (p *Promotion) IsApplicable(pc PromotionContext) bool {
	if !p.Active {
		return false
	}

	if pc.Now.Before(p.StartDate) || pc.Now.After(p.EndDate) {
		return false
	}

	if p.UsageLimit != nil && p.TimesUsed >= *p.UsageLimit {
		return false
	}

	if pc.OrderValue.LessThan(p.MinOrderValue) {
		return false
	}

	if len(p.ApplicableMovies) > 0 && !slices.Contains(p.ApplicableMovies, pc.MovieID) {
		return false
	}

	if len(p.ApplicableShowtimes) > 0 && !slices.Contains(p.ApplicableShowtimes, pc.ShowtimeID) {
		return false
	}

	return true
}

// CalculateDiscount never returns more than the order value.
func (p *Promotion) CalculateDiscount(orderValue decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal

	switch p.Type {
	case DiscountTypePercentage:
		discount = orderValue.Mul(p.Value).Div(decimal.NewFromInt(100)).Round(2)
		if p.MaxDiscount != nil && discount.GreaterThan(*p.MaxDiscount) {
			discount = *p.MaxDiscount
		}
	case DiscountTypeFixed:
		discount = p.Value
	}

	if discount.GreaterThan(orderValue) {
		discount = orderValue
	}

	if discount.IsNegative() {
		return decimal.Zero
	}

	return discount
}

type PromotionRepository interface {
	GetByCode(ctx context.Context, code string) (*Promotion, error)
	IncrementUsage(ctx context.Context, id int) error
}
