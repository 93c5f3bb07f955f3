package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/factorlab/internal/calendar"
)

var postgresSchemaDDL = []string{
	`CREATE SCHEMA IF NOT EXISTS factorlab`,
	`CREATE TABLE IF NOT EXISTS factorlab.rows (
		tbl        TEXT  NOT NULL,
		trade_date TEXT COLLATE "C" NOT NULL,
		seq        INT   NOT NULL,
		labels     JSONB NOT NULL,
		vals       JSONB NOT NULL,
		PRIMARY KEY (tbl, trade_date, seq)
	)`,
}

// PostgresBackend keeps all tables in factorlab.rows, partitioned by the tbl column
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// OpenPostgres ensures the storage schema exists on pool
func OpenPostgres(ctx context.Context, pool *pgxpool.Pool) (*PostgresBackend, error) {
	for _, ddl := range postgresSchemaDDL {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("create store schema: %w", err)
		}
	}
	return &PostgresBackend{pool: pool}, nil
}

// Table returns the table described by schema
func (b *PostgresBackend) Table(schema Schema) Table {
	return &postgresTable{pool: b.pool, schema: schema}
}

// Close is a no-op: the pool belongs to pkg/database
func (b *PostgresBackend) Close() error { return nil }

type postgresTable struct {
	pool   *pgxpool.Pool
	schema Schema
}

func (t *postgresTable) Schema() Schema { return t.schema }

func (t *postgresTable) ReadByRange(ctx context.Context, bgn, stp string, columns ...string) ([]Record, error) {
	query := `
		SELECT trade_date, labels, vals
		FROM factorlab.rows
		WHERE tbl = $1 AND trade_date >= $2 AND trade_date < $3
		ORDER BY trade_date, seq
	`
	rows, err := t.pool.Query(ctx, query, t.schema.Name, bgn, stp)
	if err != nil {
		return nil, fmt.Errorf("read %s [%s, %s): %w", t.schema.Name, bgn, stp, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			date   string
			labels []byte
			vals   []byte
		)
		if err := rows.Scan(&date, &labels, &vals); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.schema.Name, err)
		}
		r, err := decodePostgresRow(date, labels, vals)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.schema.Name, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", t.schema.Name, err)
	}
	return project(t.schema, out, columns)
}

func (t *postgresTable) LastDate(ctx context.Context) (string, bool, error) {
	var last *string
	err := t.pool.QueryRow(ctx, `SELECT max(trade_date) FROM factorlab.rows WHERE tbl = $1`, t.schema.Name).Scan(&last)
	if err != nil {
		return "", false, fmt.Errorf("last date of %s: %w", t.schema.Name, err)
	}
	if last == nil {
		return "", false, nil
	}
	return *last, true, nil
}

func (t *postgresTable) CheckContinuity(ctx context.Context, bgn string, cal *calendar.Calendar) (Continuity, error) {
	last, ok, err := t.LastDate(ctx)
	if err != nil {
		return 0, err
	}
	return checkContinuity(last, ok, bgn, cal)
}

// Update copies rows inside one transaction
func (t *postgresTable) Update(ctx context.Context, rows []Record) error {
	if len(rows) == 0 {
		return nil
	}
	last, ok, err := t.LastDate(ctx)
	if err != nil {
		return err
	}
	prepared, err := prepareRows(t.schema, rows, last, ok)
	if err != nil {
		return err
	}

	input := make([][]interface{}, len(prepared))
	seq, prev := 0, ""
	for i, r := range prepared {
		if r.TradeDate != prev {
			seq, prev = 0, r.TradeDate
		}
		labels, vals, err := encodePostgresRow(r)
		if err != nil {
			return fmt.Errorf("encode %s: %w", t.schema.Name, err)
		}
		input[i] = []interface{}{t.schema.Name, r.TradeDate, seq, labels, vals}
		seq++
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", t.schema.Name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"factorlab", "rows"},
		[]string{"tbl", "trade_date", "seq", "labels", "vals"},
		pgx.CopyFromRows(input),
	)
	if err != nil {
		return fmt.Errorf("copy %s: %w", t.schema.Name, err)
	}
	return tx.Commit(ctx)
}

// NaN has no JSON form, so values travel as nullable numbers
func encodePostgresRow(r Record) ([]byte, []byte, error) {
	labels, err := json.Marshal(r.Labels)
	if err != nil {
		return nil, nil, err
	}
	nullable := make(map[string]*float64, len(r.Values))
	for k, v := range r.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			nullable[k] = nil
			continue
		}
		v := v
		nullable[k] = &v
	}
	vals, err := json.Marshal(nullable)
	if err != nil {
		return nil, nil, err
	}
	return labels, vals, nil
}

func decodePostgresRow(date string, labels, vals []byte) (Record, error) {
	r := Record{TradeDate: date, Labels: map[string]string{}, Values: map[string]float64{}}
	if err := json.Unmarshal(labels, &r.Labels); err != nil {
		return r, err
	}
	var nullable map[string]*float64
	if err := json.Unmarshal(vals, &nullable); err != nil {
		return r, err
	}
	for k, v := range nullable {
		if v == nil {
			r.Values[k] = math.NaN()
			continue
		}
		r.Values[k] = *v
	}
	return r, nil
}
