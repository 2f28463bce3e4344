package mapper

import "fmt"

// DuplicateKeyError means two metadata rows of one version collapsed onto
// the same natural key, which would make the mapping ambiguous.
type DuplicateKeyError struct {
	Dimension string
	Key       string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate %s key %q", e.Dimension, e.Key)
}

// InvalidHierarchyLinkError means a hierarchy link's leaf references a
// filter that is not marked hierarchical.
type InvalidHierarchyLinkError struct {
	FilterColumn string
}

func (e *InvalidHierarchyLinkError) Error() string {
	return fmt.Sprintf("hierarchy link leaf references non-hierarchical filter %q", e.FilterColumn)
}
