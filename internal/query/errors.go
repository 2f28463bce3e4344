package query

import (
	"fmt"

	"github.com/google/uuid"

	types "github.com/openstats/datasetsvc/internal/domain"
)

// ValidationError rejects a malformed query before it reaches the columnar
// engine. These are caller errors and are never retried.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid query: %s: %s", e.Field, e.Detail)
}

// UnreachableHierarchyOptionError means an option chosen for a hierarchical
// leaf filter is not reachable through any of the allowed combinations.
type UnreachableHierarchyOptionError struct {
	LeafFilterID int64
	OptionID     int64
}

func (e *UnreachableHierarchyOptionError) Error() string {
	return fmt.Sprintf("option %d of leaf filter %d is not reachable through any allowed hierarchy combination", e.OptionID, e.LeafFilterID)
}

// VersionNotQueryableError gates Draft versions out of the query path.
type VersionNotQueryableError struct {
	VersionID uuid.UUID
	Status    types.DataSetVersionStatus
}

func (e *VersionNotQueryableError) Error() string {
	return fmt.Sprintf("data set version %s has status %q and is not queryable", e.VersionID, e.Status)
}
