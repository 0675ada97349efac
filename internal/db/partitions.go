package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Partition describes one required range partition of a partitioned table.
// The registry is data, reconciled against the catalog by EnsurePartitions;
// the load path never assembles DDL on the fly.
type Partition struct {
	Parent string
	Name   string
	From   time.Time
	To     time.Time
}

// MonthlyPartitions enumerates the monthly partitions a parent table needs to
// cover [start, end], plus one trailing month of headroom.
func MonthlyPartitions(parent string, start, end time.Time) []Partition {
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)

	var partitions []Partition
	for month := first; !month.After(last); month = month.AddDate(0, 1, 0) {
		partitions = append(partitions, Partition{
			Parent: parent,
			Name:   fmt.Sprintf("%s_y%04dm%02d", parent, month.Year(), int(month.Month())),
			From:   month,
			To:     month.AddDate(0, 1, 0),
		})
	}
	return partitions
}

// EnsurePartitions creates every registered partition that does not exist yet.
// Safe to run on every startup.
func EnsurePartitions(ctx context.Context, pool *pgxpool.Pool, partitions []Partition) error {
	for _, p := range partitions {
		var exists bool
		err := pool.QueryRow(
			ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = $1)`,
			p.Name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check partition %s: %w", p.Name, err)
		}
		if exists {
			continue
		}

		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
			p.Name, p.Parent,
			p.From.Format("2006-01-02"), p.To.Format("2006-01-02"),
		)
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create partition %s: %w", p.Name, err)
		}
	}

	return nil
}
