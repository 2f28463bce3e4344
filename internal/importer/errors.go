package importer

import (
	"fmt"

	"github.com/google/uuid"
)

// InvalidRowError reports a data-file row whose shape does not match the
// header, carrying enough context for an operator to find the source line.
type InvalidRowError struct {
	Row      int64
	FileName string
	Detail   string
}

func (e *InvalidRowError) Error() string {
	return fmt.Sprintf("invalid row %d in %s: %s", e.Row, e.FileName, e.Detail)
}

// InvalidMetaHeaderError reports a metadata file whose header row is not
// the expected column set.
type InvalidMetaHeaderError struct {
	SubjectID uuid.UUID
	Detail    string
}

func (e *InvalidMetaHeaderError) Error() string {
	return fmt.Sprintf("invalid meta header for subject %s: %s", e.SubjectID, e.Detail)
}

// InvalidMetaRowError reports an unparseable metadata row.
type InvalidMetaRowError struct {
	SubjectID uuid.UUID
	Row       int64
	Detail    string
}

func (e *InvalidMetaRowError) Error() string {
	return fmt.Sprintf("invalid meta row %d for subject %s: %s", e.Row, e.SubjectID, e.Detail)
}

// InvalidObservationError reports a non-numeric observation value in an
// indicator column that is not one of the recognised missing-value markers.
type InvalidObservationError struct {
	SubjectID uuid.UUID
	Row       int64
	Message   string
}

func (e *InvalidObservationError) Error() string {
	return fmt.Sprintf("invalid observation at row %d for subject %s: %s", e.Row, e.SubjectID, e.Message)
}
