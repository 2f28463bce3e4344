package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ImportEvent is one progress notification for a running version import.
type ImportEvent struct {
	ImportID         uuid.UUID `json:"import_id"`
	DataSetVersionID uuid.UUID `json:"data_set_version_id"`
	Stage            string    `json:"stage"`
	Status           string    `json:"status"`
	Detail           string    `json:"detail,omitempty"`
	At               time.Time `json:"at"`
}

// Bus fans import progress out to interested consumers.
type Bus interface {
	Publish(ctx context.Context, ev ImportEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev ImportEvent)) error
	Close() error
}
