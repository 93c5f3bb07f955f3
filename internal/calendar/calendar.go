// Package calendar provides the trading-day calendar every stage shifts dates with.
package calendar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/wonny/factorlab/pkg/redis"
)

var (
	// ErrDateNotFound is returned when a date is not a trading day
	ErrDateNotFound = errors.New("date not in calendar")
	// ErrOutOfRange is returned when a shift leaves the calendar
	ErrOutOfRange = errors.New("shift out of calendar range")
)

// Calendar is an immutable, sorted list of YYYYMMDD trading days.
// It is safe for concurrent use.
type Calendar struct {
	dates []string
	index map[string]int
}

// New builds a calendar from trading days in any order. Duplicates are rejected.
func New(dates []string) (*Calendar, error) {
	sorted := make([]string, len(dates))
	copy(sorted, dates)
	sort.Strings(sorted)

	index := make(map[string]int, len(sorted))
	for i, d := range sorted {
		if !validDate(d) {
			return nil, fmt.Errorf("invalid trade date %q", d)
		}
		if _, dup := index[d]; dup {
			return nil, fmt.Errorf("duplicate trade date %s", d)
		}
		index[d] = i
	}
	return &Calendar{dates: sorted, index: index}, nil
}

// Load reads a calendar file with one trade date per line. A non-date first line is treated as header.
func Load(path string) (*Calendar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calendar: %w", err)
	}
	defer f.Close()

	var dates []string
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// first column only, so "trade_date,..." exports load too
		if i := strings.IndexByte(line, ','); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		if first && !validDate(line) {
			first = false
			continue
		}
		first = false
		dates = append(dates, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read calendar: %w", err)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("calendar %s is empty", path)
	}
	return New(dates)
}

// LoadCached loads the calendar through the Redis cache, keyed by path and modification time
func LoadCached(ctx context.Context, cache *redis.Cache, path string) (*Calendar, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat calendar: %w", err)
	}

	var dates []string
	err = cache.GetOrSet(ctx, redis.CalendarKey(path, info.ModTime().Unix()), &dates, redis.TTLDaily,
		func() (interface{}, error) {
			cal, err := Load(path)
			if err != nil {
				return nil, err
			}
			return cal.dates, nil
		})
	if err != nil {
		return nil, err
	}
	return New(dates)
}

func validDate(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NextDate shifts date by shift trading days. Negative shifts look back; 0 returns date itself.
func (c *Calendar) NextDate(date string, shift int) (string, error) {
	i, ok := c.index[date]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDateNotFound, date)
	}
	j := i + shift
	if j < 0 || j >= len(c.dates) {
		return "", fmt.Errorf("%w: %s shifted by %d", ErrOutOfRange, date, shift)
	}
	return c.dates[j], nil
}

// DayStop returns the exclusive stop that makes [date, stop) select date alone:
// the next trading day, or the following civil day after the last trading day
func (c *Calendar) DayStop(date string) (string, error) {
	next, err := c.NextDate(date, 1)
	if !errors.Is(err, ErrOutOfRange) {
		return next, err
	}
	d, err := time.Parse("20060102", date)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDateNotFound, date)
	}
	return d.AddDate(0, 0, 1).Format("20060102"), nil
}

// BufferStart looks back n trading days from date, stopping at the first calendar day.
// Warm-up ranges use it so that runs near the start of history still compute.
func (c *Calendar) BufferStart(date string, n int) (string, error) {
	i, ok := c.index[date]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDateNotFound, date)
	}
	return c.dates[max(0, i-n)], nil
}

// IterList returns the trading days in [bgn, stp)
func (c *Calendar) IterList(bgn, stp string) []string {
	lo := sort.SearchStrings(c.dates, bgn)
	hi := sort.SearchStrings(c.dates, stp)
	if hi <= lo {
		return nil
	}
	out := make([]string, hi-lo)
	copy(out, c.dates[lo:hi])
	return out
}

// Contains reports whether date is a trading day
func (c *Calendar) Contains(date string) bool {
	_, ok := c.index[date]
	return ok
}

// Len returns the number of trading days
func (c *Calendar) Len() int { return len(c.dates) }

// First returns the earliest trading day
func (c *Calendar) First() string { return c.dates[0] }

// Last returns the latest trading day
func (c *Calendar) Last() string { return c.dates[len(c.dates)-1] }
