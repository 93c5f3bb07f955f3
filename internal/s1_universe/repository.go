package s1_universe

import (
	"context"
	"fmt"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/store"
)

// Repository reads the persisted available universe
type Repository struct {
	table store.Table
	cal   *calendar.Calendar
}

// NewRepository creates a new available-universe repository
func NewRepository(backend store.Backend, cal *calendar.Calendar) *Repository {
	return &Repository{table: backend.Table(Schema()), cal: cal}
}

// At returns the available rows of one trading date
func (r *Repository) At(ctx context.Context, date string, columns ...string) ([]store.Record, error) {
	stp, err := r.cal.DayStop(date)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, date, stp, columns...)
}

// Load returns the available rows of [bgn, stp)
func (r *Repository) Load(ctx context.Context, bgn, stp string, columns ...string) ([]store.Record, error) {
	rows, err := r.table.ReadByRange(ctx, bgn, stp, columns...)
	if err != nil {
		return nil, fmt.Errorf("load available: %w", err)
	}
	return rows, nil
}

// Index groups rows by date, keeping the stored order inside each date
func Index(rows []store.Record) (dates []string, byDate map[string][]store.Record) {
	byDate = map[string][]store.Record{}
	for _, r := range rows {
		if _, ok := byDate[r.TradeDate]; !ok {
			dates = append(dates, r.TradeDate)
		}
		byDate[r.TradeDate] = append(byDate[r.TradeDate], r)
	}
	return dates, byDate
}

// Instruments returns the instruments available on date
func (r *Repository) Instruments(ctx context.Context, date string) ([]string, error) {
	rows, err := r.At(ctx, date, ColInstrument)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row.Label(ColInstrument)
	}
	return out, nil
}
