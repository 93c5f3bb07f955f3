// Package testutil builds the fixtures shared by the stage tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/store"
)

// Weekdays returns n consecutive Monday..Friday dates starting at start (YYYYMMDD)
func Weekdays(start string, n int) []string {
	d, err := time.Parse("20060102", start)
	if err != nil {
		panic(err)
	}
	out := make([]string, 0, n)
	for len(out) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d.Format("20060102"))
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// Calendar returns a calendar of n weekdays starting 2024-01-01
func Calendar(t testing.TB, n int) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(Weekdays("20240101", n))
	require.NoError(t, err)
	return cal
}

// Store opens an in-memory badger backend closed at test cleanup
func Store(t testing.TB) store.Backend {
	t.Helper()
	b, err := store.OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// Sources is the source layout used by the fixtures
var Sources = projectconfig.SourcesConfig{
	Preprocess: "preprocess",
	MinuteBar:  "minute_bar",
}

// Write appends rows to the table described by schema
func Write(t testing.TB, b store.Backend, schema store.Schema, rows []store.Record) {
	t.Helper()
	if len(rows) == 0 {
		return
	}
	require.NoError(t, b.Table(schema).Update(t.Context(), rows))
}
