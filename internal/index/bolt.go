package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/recvault/recvault/internal/models"
)

var (
	bucketRecordings = []byte("recordings")
	bucketByCreated  = []byte("by_created")
)

// BoltIndex implements Index using bbolt.
// Records are stored as JSON keyed by id, with a secondary bucket ordering
// ids by creation time for List.
type BoltIndex struct {
	db *bolt.DB
}

// NewBoltIndex opens or creates a bbolt database at the given path.
func NewBoltIndex(dbPath string) (*BoltIndex, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecordings, bucketByCreated} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BoltIndex{db: db}, nil
}

// Close releases the bbolt database.
func (s *BoltIndex) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put upserts a record and maintains the creation-time ordering bucket.
func (s *BoltIndex) Put(_ context.Context, rec *models.Recording) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal recording: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		recBucket := tx.Bucket(bucketRecordings)
		timeBucket := tx.Bucket(bucketByCreated)

		// Drop the old ordering key if the creation time changed on upsert.
		if old := recBucket.Get([]byte(rec.ID)); old != nil {
			var prev models.Recording
			if err := json.Unmarshal(old, &prev); err == nil {
				if oldKey := timeKey(&prev); oldKey != timeKey(rec) {
					if err := timeBucket.Delete([]byte(oldKey)); err != nil {
						return fmt.Errorf("delete stale ordering key: %w", err)
					}
				}
			}
		}

		if err := timeBucket.Put([]byte(timeKey(rec)), []byte(rec.ID)); err != nil {
			return fmt.Errorf("store ordering key: %w", err)
		}
		if err := recBucket.Put([]byte(rec.ID), data); err != nil {
			return fmt.Errorf("store recording: %w", err)
		}
		return nil
	})
}

// Get retrieves a record by id. Returns ErrNotFound if missing.
func (s *BoltIndex) Get(_ context.Context, id string) (*models.Recording, error) {
	var rec *models.Recording
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecordings).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		rec = &models.Recording{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns records in creation-time order with cursor pagination.
func (s *BoltIndex) List(_ context.Context, opts ListOptions) ([]*models.Recording, string, error) {
	var (
		recs []*models.Recording
		next string
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		recBucket := tx.Bucket(bucketRecordings)
		c := tx.Bucket(bucketByCreated).Cursor()

		var k, v []byte
		if opts.After != "" {
			k, v = c.Seek([]byte(opts.After))
			// Cursor is exclusive.
			if k != nil && string(k) == opts.After {
				k, v = c.Next()
			}
		} else {
			k, v = c.First()
		}

		for ; k != nil; k, v = c.Next() {
			data := recBucket.Get(v)
			if data == nil {
				continue
			}
			var rec models.Recording
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("unmarshal recording %s: %w", v, err)
			}
			if !opts.matches(&rec) {
				continue
			}
			if opts.Limit > 0 && len(recs) == opts.Limit {
				// One more match exists, so the previous page is full.
				next = timeKey(recs[len(recs)-1])
				return nil
			}
			recs = append(recs, &rec)
		}
		return nil
	})

	if err != nil {
		return nil, "", err
	}
	return recs, next, nil
}

// Delete removes a record and its ordering key. Returns ErrNotFound if missing.
func (s *BoltIndex) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		recBucket := tx.Bucket(bucketRecordings)

		data := recBucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var rec models.Recording
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshal recording %s: %w", id, err)
		}

		if err := tx.Bucket(bucketByCreated).Delete([]byte(timeKey(&rec))); err != nil {
			return fmt.Errorf("delete ordering key: %w", err)
		}
		return recBucket.Delete([]byte(id))
	})
}

// SetStatus performs a compare-and-swap on a record's lifecycle status.
func (s *BoltIndex) SetStatus(_ context.Context, id string, from, to models.Status) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecordings)

		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var rec models.Recording
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshal recording %s: %w", id, err)
		}
		if rec.Status != from {
			return fmt.Errorf("%w: recording %s is %s, expected %s", ErrConflict, id, rec.Status, from)
		}

		rec.Status = to
		rec.UpdatedAt = time.Now().UTC()

		updated, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal recording: %w", err)
		}
		return b.Put([]byte(id), updated)
	})
}
