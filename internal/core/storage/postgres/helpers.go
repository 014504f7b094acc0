package postgres

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xyproto/mouselog/internal/core/storage"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecordRow scans one bucket_records row.
// NUMERIC columns go through decimal so the float written by Append comes back bit for bit.
func scanRecordRow(row scanner) (storage.Record, error) {
	var (
		rec      storage.Record
		distance decimal.Decimal
		total    decimal.Decimal
	)
	if err := row.Scan(&rec.Key, &distance, &total); err != nil {
		return storage.Record{}, fmt.Errorf("failed to scan record row: %w", err)
	}
	rec.Value = distance.InexactFloat64()
	rec.Total = total.InexactFloat64()
	return rec, nil
}

// toNumeric converts a float to the exact decimal text stored in NUMERIC columns.
func toNumeric(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
