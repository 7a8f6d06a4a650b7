package gtfsgeneral

import (
	"errors"
	"fmt"
)

// ErrEmptyFeed is returned by metadata queries when no service in the feed
// resolves to at least one active date.
var ErrEmptyFeed = errors.New("no service has any active date")

// SchemaError reports a required table or column missing from the input feed.
// Column is empty when the whole table is missing.
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("required file %s.txt is missing", e.Table)
	}
	return fmt.Sprintf("%s.txt is missing required column %s", e.Table, e.Column)
}

// InvalidBboxError reports a malformed or inverted bounding box parameter.
type InvalidBboxError struct {
	Value  string
	Reason string
}

func (e *InvalidBboxError) Error() string {
	return fmt.Sprintf("invalid bbox %q: %s", e.Value, e.Reason)
}

// InvalidDateRangeError reports a malformed or inverted date-range parameter.
type InvalidDateRangeError struct {
	Start  string
	End    string
	Reason string
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf("invalid date range %s..%s: %s", e.Start, e.End, e.Reason)
}
