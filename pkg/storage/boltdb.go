package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/burrow/pkg/types"
)

// DatabaseFile is the journal file name inside the data directory
const DatabaseFile = "burrow.db"

var (
	// Bucket names
	bucketChanges     = []byte("changes")
	bucketDeployments = []byte("deployments")
)

// BoltStore implements Journal using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates <dataDir>/burrow.db
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketChanges, bucketDeployments} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.db.Path()
}

// sequenceKey encodes a bucket sequence so that keys sort in insertion order
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// --- Changes ---

// RecordChange appends a change record, assigning an id if it has none
func (s *BoltStore) RecordChange(record *types.ChangeRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChanges)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
}

// ListChanges returns every change record in the order they were recorded
func (s *BoltStore) ListChanges() ([]*types.ChangeRecord, error) {
	return s.listChanges(func(*types.ChangeRecord) bool { return true })
}

// ListChangesByDataset returns the change records for one dataset
func (s *BoltStore) ListChangesByDataset(datasetID string) ([]*types.ChangeRecord, error) {
	return s.listChanges(func(r *types.ChangeRecord) bool {
		return r.DatasetID == datasetID
	})
}

func (s *BoltStore) listChanges(keep func(*types.ChangeRecord) bool) ([]*types.ChangeRecord, error) {
	var records []*types.ChangeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChanges)
		return b.ForEach(func(k, v []byte) error {
			var record types.ChangeRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to decode change %x: %w", k, err)
			}
			if keep(&record) {
				records = append(records, &record)
			}
			return nil
		})
	})
	return records, err
}

// --- Deployments ---

// SaveDeployment appends a desired configuration snapshot
func (s *BoltStore) SaveDeployment(deployment *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(deployment)
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
}

// LatestDeployment returns the most recently saved desired configuration
func (s *BoltStore) LatestDeployment() (*types.Deployment, error) {
	var deployment types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		k, v := b.Cursor().Last()
		if k == nil {
			return fmt.Errorf("deployment %w", ErrNotFound)
		}
		return json.Unmarshal(v, &deployment)
	})
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}
