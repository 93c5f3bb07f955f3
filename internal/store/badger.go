package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/wonny/factorlab/internal/calendar"
)

// badgerChunk bounds the rows written per badger transaction
const badgerChunk = 500

// rowPrefix keeps row keys apart from the badgerhold meta records ("bh_" prefixed)
const rowPrefix = "row|"

// row is the stored value of a Record; the table, date and sequence live in the key
type row struct {
	Labels map[string]string
	Values map[string]float64
}

// tablePrefix is the key prefix shared by every row of table
func tablePrefix(table string) []byte {
	return []byte(rowPrefix + table + "|")
}

// rowKey orders rows by trade date, then by insertion sequence within the date
func rowKey(table, date string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s|%s|%06d", rowPrefix, table, date, seq))
}

// keyDate extracts the trade date from a row key of the given prefix
func keyDate(key, prefix []byte) string {
	rest := key[len(prefix):]
	if i := bytes.IndexByte(rest, '|'); i >= 0 {
		return string(rest[:i])
	}
	return string(rest)
}

// tableMeta tracks the last stored date of one table
type tableMeta struct {
	Name     string
	LastDate string
	Rows     int
}

// BadgerBackend stores every table in one embedded badger store.
// Rows are raw ordered keys; badgerhold keeps the per-table meta records.
type BadgerBackend struct {
	store *badgerhold.Store
}

// OpenBadger opens (creating when needed) the store in dir
func OpenBadger(dir string) (*BadgerBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	s, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerBackend{store: s}, nil
}

// OpenBadgerInMemory opens a throwaway store, used by tests
func OpenBadgerInMemory() (*BadgerBackend, error) {
	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions("").WithInMemory(true)
	options.Logger = nil

	s, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger store: %w", err)
	}
	return &BadgerBackend{store: s}, nil
}

// Table returns the table described by schema
func (b *BadgerBackend) Table(schema Schema) Table {
	return &badgerTable{store: b.store, schema: schema}
}

// Close closes the store
func (b *BadgerBackend) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

type badgerTable struct {
	store  *badgerhold.Store
	schema Schema
}

func (t *badgerTable) Schema() Schema { return t.schema }

func (t *badgerTable) ReadByRange(ctx context.Context, bgn, stp string, columns ...string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := tablePrefix(t.schema.Name)
	var out []Record
	err := t.store.Badger().View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), bgn...)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			date := keyDate(item.Key(), prefix)
			if date >= stp {
				break
			}
			var r row
			if err := item.Value(func(val []byte) error {
				return badgerhold.DefaultDecode(val, &r)
			}); err != nil {
				return err
			}
			rec := Record{TradeDate: date, Labels: r.Labels, Values: r.Values}
			if rec.Labels == nil {
				rec.Labels = map[string]string{}
			}
			if rec.Values == nil {
				rec.Values = map[string]float64{}
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s [%s, %s): %w", t.schema.Name, bgn, stp, err)
	}
	return project(t.schema, out, columns)
}

func (t *badgerTable) meta() (tableMeta, bool, error) {
	var m tableMeta
	err := t.store.Get(t.schema.Name, &m)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return tableMeta{Name: t.schema.Name}, false, nil
	}
	if err != nil {
		return m, false, fmt.Errorf("read meta of %s: %w", t.schema.Name, err)
	}
	return m, m.Rows > 0, nil
}

func (t *badgerTable) LastDate(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m, ok, err := t.meta()
	if err != nil || !ok {
		return "", false, err
	}
	return m.LastDate, true, nil
}

func (t *badgerTable) CheckContinuity(ctx context.Context, bgn string, cal *calendar.Calendar) (Continuity, error) {
	last, ok, err := t.LastDate(ctx)
	if err != nil {
		return 0, err
	}
	return checkContinuity(last, ok, bgn, cal)
}

// Update writes rows in chunks; the meta record advances with every committed chunk
func (t *badgerTable) Update(ctx context.Context, rows []Record) error {
	if len(rows) == 0 {
		return nil
	}
	m, ok, err := t.meta()
	if err != nil {
		return err
	}
	prepared, err := prepareRows(t.schema, rows, m.LastDate, ok)
	if err != nil {
		return err
	}

	seq := 0
	prev := ""
	for start := 0; start < len(prepared); start += badgerChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+badgerChunk, len(prepared))

		err := t.store.Badger().Update(func(tx *badger.Txn) error {
			for _, r := range prepared[start:end] {
				if r.TradeDate != prev {
					seq, prev = 0, r.TradeDate
				}
				val, err := badgerhold.DefaultEncode(row{Labels: r.Labels, Values: r.Values})
				if err != nil {
					return err
				}
				if err := tx.Set(rowKey(t.schema.Name, r.TradeDate, seq), val); err != nil {
					return err
				}
				seq++
			}
			m.LastDate = prepared[end-1].TradeDate
			m.Rows += end - start
			return t.store.TxUpsert(tx, t.schema.Name, m)
		})
		if err != nil {
			return fmt.Errorf("write %s: %w", t.schema.Name, err)
		}
	}
	return nil
}
