// internal/database/store.go
package database

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Store is the alert and sighting journal. It is write-mostly history for the
// API and is never read back into the monitor's presence state.
type Store interface {
	// Alert operations
	RecordAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, id string) (*Alert, error)
	ListAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error)

	// Sighting operations
	RecordSighting(ctx context.Context, sighting *Sighting) error
	ListSightings(ctx context.Context, filters SightingFilters) ([]Sighting, error)

	// Retention
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
	Stats(ctx context.Context) (*DatabaseStats, error)

	// Close the database connection
	Close() error
}
