package db

import (
	"testing"
	"time"
)

func TestMonthlyPartitions(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	partitions := MonthlyPartitions("fact_time_logs", start, end)

	// Jan through Apr: the covered months plus one trailing month of headroom.
	if len(partitions) != 4 {
		t.Fatalf("expected 4 partitions, got %d", len(partitions))
	}
	if partitions[0].Name != "fact_time_logs_y2026m01" {
		t.Fatalf("unexpected first partition name %s", partitions[0].Name)
	}
	if partitions[3].Name != "fact_time_logs_y2026m04" {
		t.Fatalf("unexpected trailing partition name %s", partitions[3].Name)
	}

	for i, p := range partitions {
		if !p.To.Equal(p.From.AddDate(0, 1, 0)) {
			t.Fatalf("partition %d must span exactly one month", i)
		}
		if i > 0 && !p.From.Equal(partitions[i-1].To) {
			t.Fatalf("partition %d must start where the previous one ends", i)
		}
	}
}

func TestMonthlyPartitionsCrossYear(t *testing.T) {
	start := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	partitions := MonthlyPartitions("fact_time_logs", start, end)
	if len(partitions) != 3 {
		t.Fatalf("expected 3 partitions, got %d", len(partitions))
	}
	if partitions[1].Name != "fact_time_logs_y2026m01" {
		t.Fatalf("year boundary not handled, got %s", partitions[1].Name)
	}
}
