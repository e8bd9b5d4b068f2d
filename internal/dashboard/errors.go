package dashboard

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTab   = errors.New("dashboard: unknown tab")
	ErrUnknownChart = errors.New("dashboard: unknown chart")
)

// RenderError means one chart could not be redrawn for a year. The chart
// keeps whatever it showed before.
type RenderError struct {
	Chart ChartKey
	Year  int
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s (%d): %v", e.Chart, e.Year, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
