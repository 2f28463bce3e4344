package extractor

import "fmt"

// InvalidGeographicLevelError reports an unrecognised geographic_level
// token in the staged data.
type InvalidGeographicLevelError struct {
	LevelName string
}

func (e *InvalidGeographicLevelError) Error() string {
	return fmt.Sprintf("unknown geographic level %q", e.LevelName)
}

// InvalidTimeIdentifierError reports an unrecognised time_identifier code.
type InvalidTimeIdentifierError struct {
	Value string
}

func (e *InvalidTimeIdentifierError) Error() string {
	return fmt.Sprintf("unknown time identifier %q", e.Value)
}

// InvalidTimePeriodError reports an unparseable time_period value.
type InvalidTimePeriodError struct {
	Value string
}

func (e *InvalidTimePeriodError) Error() string {
	return fmt.Sprintf("invalid time period %q", e.Value)
}
