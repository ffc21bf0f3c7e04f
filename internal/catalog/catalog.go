// Package catalog is ambient tooling around the embedded store: a
// bbolt-backed registry of store directories that regionctl has opened,
// grounded on the teacher's BoltMetadataStore (schemaless key->JSON-
// document metadata, repurposed for CLI bookkeeping rather than region
// bytes; see SPEC_FULL.md §6.1).
package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketStores = []byte("stores")

// Entry is one catalog record: a store directory regionctl has opened,
// plus the last stats snapshot observed.
type Entry struct {
	Path        string    `json:"path"`
	LastOpened  time.Time `json:"last_opened"`
	RegionCount int       `json:"region_count"`
	FileSize    uint64    `json:"file_size"`
}

// Catalog wraps a bbolt database of Entry records keyed by directory path.
type Catalog struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketStores)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: init bucket: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close releases the underlying bbolt database.
func (c *Catalog) Close() error { return c.db.Close() }

// Record upserts an entry, stamping LastOpened with now.
func (c *Catalog) Record(e Entry, now time.Time) error {
	e.LastOpened = now
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStores)
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put([]byte(e.Path), data)
	})
}

// Get returns the entry for path, if any.
func (c *Catalog) Get(path string) (Entry, bool, error) {
	var e Entry
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStores)
		data := b.Get([]byte(path))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	return e, found, err
}

// List returns every catalog entry, ordered by path.
func (c *Catalog) List() ([]Entry, error) {
	var out []Entry
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStores)
		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Remove deletes path's entry, if present.
func (c *Catalog) Remove(path string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketStores).Delete([]byte(path))
	})
}
