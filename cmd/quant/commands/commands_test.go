package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/s4_tests"
	"github.com/wonny/factorlab/internal/testutil"
	"github.com/wonny/factorlab/internal/workerpool"
)

func TestDateRange(t *testing.T) {
	cal := testutil.Calendar(t, 10)

	bgn, stp, err := dateRange(cal, "20240105", "")
	require.NoError(t, err)
	assert.Equal(t, "20240105", bgn)
	assert.Equal(t, "20240108", stp)

	_, stp, err = dateRange(cal, "20240102", "20240110")
	require.NoError(t, err)
	assert.Equal(t, "20240110", stp)

	tests := []struct {
		name     string
		bgn, stp string
		target   error
	}{
		{"missing bgn", "", "", nil},
		{"holiday", "20240106", "", calendar.ErrDateNotFound},
		{"stp before bgn", "20240105", "20240104", nil},
		{"last day", "20240112", "", calendar.ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := dateRange(cal, tt.bgn, tt.stp)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestParseRets(t *testing.T) {
	rets, err := parseRets(nil, []int{1, 5})
	require.NoError(t, err)
	assert.Equal(t, "Opn001L1,Opn005L1,Cls001L1,Cls005L1", retNames(rets))

	rets, err = parseRets([]string{"Cls010L2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []s4_tests.Ret{{Class: s4_tests.ClassCls, Win: 10, Lag: 2}}, rets)

	_, err = parseRets([]string{"Mid001L1"}, nil)
	assert.ErrorIs(t, err, s4_tests.ErrBadReturnName)
}

func TestPrintPoolReport(t *testing.T) {
	assert.NoError(t, PrintPoolReport(nil))
	assert.NoError(t, PrintPoolReport(&workerpool.Report{Name: "factor", Total: 2, Succeeded: 2}))

	boom := errors.New("calendar gap")
	err := PrintPoolReport(&workerpool.Report{
		Name:      "factor",
		Total:     2,
		Succeeded: 1,
		Failures:  []*workerpool.TaskError{{ID: "AU.SHF", Err: boom}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"avlb", "mkt", "css", "icov", "factor", "signals", "tstret", "qtest", "corr", "import", "quality", "api", "scheduler", "daily"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
