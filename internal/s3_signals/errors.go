package s3_signals

import "fmt"

// InvariantError reports a stage whose row count drifted from the joined rows
type InvariantError struct {
	Class string
	Stage string
	Want  int
	Got   int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s %s stage: %d rows, want %d", e.Class, e.Stage, e.Got, e.Want)
}
