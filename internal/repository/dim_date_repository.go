package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/taskfabric/warehouse/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type dateDimRepository struct {
	pool *pgxpool.Pool
}

// NewDateDimRepository wires the calendar dimension loader.
func NewDateDimRepository(pool *pgxpool.Pool) DateDimRepository {
	return &dateDimRepository{pool: pool}
}

func (r *dateDimRepository) EnsureRange(ctx context.Context, from, to time.Time) (int, error) {
	inserted := 0
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	for !day.After(end) {
		dim := domain.NewDimDate(day)
		tag, err := r.pool.Exec(
			ctx,
			`INSERT INTO dim_date (date_key, full_date, year, quarter, month, month_name,
			                       day, day_of_week, day_name, is_weekend)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (date_key) DO NOTHING`,
			dim.DateKey,
			dim.FullDate,
			dim.Year,
			dim.Quarter,
			dim.Month,
			dim.MonthName,
			dim.Day,
			dim.DayOfWeek,
			dim.DayName,
			dim.IsWeekend,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to load date dimension row %d: %w", dim.DateKey, err)
		}
		inserted += int(tag.RowsAffected())
		day = day.AddDate(0, 0, 1)
	}

	return inserted, nil
}
