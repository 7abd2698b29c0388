// internal/database/models.go
package database

import (
	"time"
)

// Alert is one notification handed to the dispatcher.
type Alert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  string    `json:"severity"`
	Category  string    `json:"category,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sighting is the first observation of a MAC after the baseline cycle.
type Sighting struct {
	ID          string    `json:"id"`
	MAC         string    `json:"mac"`
	Address     string    `json:"address"`
	Interface   string    `json:"interface"`
	DisplayName string    `json:"display_name"`
	Category    string    `json:"category"`
	Severity    string    `json:"severity"`
	Notified    bool      `json:"notified"`
	Timestamp   time.Time `json:"timestamp"`
}

type AlertFilters struct {
	Severity string
	Category string
	Source   string
	Since    *time.Time
	Limit    int
}

type SightingFilters struct {
	MAC      string
	Category string
	Since    *time.Time
	Limit    int
}

// DatabaseStats provides information about database size and contents
type DatabaseStats struct {
	TotalAlerts    int       `json:"total_alerts"`
	TotalSightings int       `json:"total_sightings"`
	DatabaseSize   int64     `json:"database_size_bytes"`
	OldestEntry    time.Time `json:"oldest_entry"`
	NewestEntry    time.Time `json:"newest_entry"`
}
