// internal/database/boltstore.go - BoltDB alert and sighting journal
package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	AlertsBucket    = []byte("alerts")
	SightingsBucket = []byte("sightings")
	MetaBucket      = []byte("meta")
)

type BoltStore struct {
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (*BoltStore, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{AlertsBucket, SightingsBucket, MetaBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// Keys sort chronologically: zero padded unix nanos, then the record id.
func timeKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d:%s", ts.UnixNano(), id))
}

func timePrefix(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", ts.UnixNano()))
}

func (s *BoltStore) put(bucket []byte, ts time.Time, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(timeKey(ts, id), data)
	})
}

func (s *BoltStore) RecordAlert(ctx context.Context, alert *Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	return s.put(AlertsBucket, alert.Timestamp, alert.ID, alert)
}

func (s *BoltStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	var alert *Alert

	err := s.db.View(func(tx *bbolt.Tx) error {
		suffix := []byte(":" + id)
		return tx.Bucket(AlertsBucket).ForEach(func(k, v []byte) error {
			if alert != nil || !bytes.HasSuffix(k, suffix) {
				return nil
			}
			var a Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("failed to unmarshal alert %s: %w", k, err)
			}
			alert = &a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return alert, nil
}

// ListAlerts returns matching alerts newest first.
func (s *BoltStore) ListAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error) {
	var alerts []Alert

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(AlertsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var alert Alert
			if err := json.Unmarshal(v, &alert); err != nil {
				continue // Skip malformed entries
			}

			if filters.Since != nil && alert.Timestamp.Before(*filters.Since) {
				break
			}
			if filters.Severity != "" && alert.Severity != filters.Severity {
				continue
			}
			if filters.Category != "" && alert.Category != filters.Category {
				continue
			}
			if filters.Source != "" && alert.Source != filters.Source {
				continue
			}

			alerts = append(alerts, alert)
			if filters.Limit > 0 && len(alerts) >= filters.Limit {
				break
			}
		}
		return nil
	})

	return alerts, err
}

func (s *BoltStore) RecordSighting(ctx context.Context, sighting *Sighting) error {
	if sighting.ID == "" {
		sighting.ID = uuid.New().String()
	}
	if sighting.Timestamp.IsZero() {
		sighting.Timestamp = time.Now()
	}
	return s.put(SightingsBucket, sighting.Timestamp, sighting.ID, sighting)
}

// ListSightings returns matching sightings newest first.
func (s *BoltStore) ListSightings(ctx context.Context, filters SightingFilters) ([]Sighting, error) {
	var sightings []Sighting

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(SightingsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var sighting Sighting
			if err := json.Unmarshal(v, &sighting); err != nil {
				continue
			}

			if filters.Since != nil && sighting.Timestamp.Before(*filters.Since) {
				break
			}
			if filters.MAC != "" && sighting.MAC != filters.MAC {
				continue
			}
			if filters.Category != "" && sighting.Category != filters.Category {
				continue
			}

			sightings = append(sightings, sighting)
			if filters.Limit > 0 && len(sightings) >= filters.Limit {
				break
			}
		}
		return nil
	})

	return sightings, err
}

// DeleteBefore removes alerts and sightings recorded before cutoff and
// returns how many were removed.
func (s *BoltStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	limit := timePrefix(cutoff)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{AlertsBucket, SightingsBucket} {
			b := tx.Bucket(name)

			var keysToDelete [][]byte
			c := b.Cursor()
			for k, _ := c.First(); k != nil && bytes.Compare(k, limit) < 0; k, _ = c.Next() {
				keysToDelete = append(keysToDelete, copyBytes(k))
			}

			for _, key := range keysToDelete {
				if err := b.Delete(key); err != nil {
					return fmt.Errorf("failed to delete %s entry: %w", name, err)
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old history: %w", err)
	}

	return deleted, nil
}

// Stats returns information about database size and contents
func (s *BoltStore) Stats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		alerts := tx.Bucket(AlertsBucket)
		sightings := tx.Bucket(SightingsBucket)
		stats.TotalAlerts = alerts.Stats().KeyN
		stats.TotalSightings = sightings.Stats().KeyN

		for _, b := range []*bbolt.Bucket{alerts, sightings} {
			c := b.Cursor()
			if k, _ := c.First(); k != nil {
				if ts, ok := keyTime(k); ok && (stats.OldestEntry.IsZero() || ts.Before(stats.OldestEntry)) {
					stats.OldestEntry = ts
				}
			}
			if k, _ := c.Last(); k != nil {
				if ts, ok := keyTime(k); ok && ts.After(stats.NewestEntry) {
					stats.NewestEntry = ts
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get database stats: %w", err)
	}

	// Get file size
	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = fileInfo.Size()
	}

	return stats, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func keyTime(k []byte) (time.Time, bool) {
	if len(k) < 20 {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(string(k[:20]), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// copyBytes creates a copy of a byte slice
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	copied := make([]byte, len(b))
	copy(copied, b)
	return copied
}
