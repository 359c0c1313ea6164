package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB keeps the registry of uploaded documents in a BoltDB file, so the page can list what the
// backend has already indexed. Conversations themselves are never persisted.
type BoltDB struct {
	db *bolt.DB
}

var documentsBucket = []byte("documents")

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return BoltDB{}, fmt.Errorf("failed to create buckets: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

// AddDocument records doc under its ID. Uploading the same document again replaces the record.
func (b BoltDB) AddDocument(_ context.Context, doc models.Document) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(documentsBucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", documentsBucket)
		}

		v, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}

		return bucket.Put([]byte(doc.ID), v)
	})
}

// Documents retrieves all recorded documents, most recently uploaded first.
func (b BoltDB) Documents(context.Context) ([]models.Document, error) {
	var docs []models.Document
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(documentsBucket)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(_, v []byte) error {
			var doc models.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to unmarshal document: %w", err)
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(docs, func(a, b models.Document) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})
	return docs, nil
}

// Document retrieves the document recorded under id. The boolean is false if there is none.
func (b BoltDB) Document(_ context.Context, id string) (models.Document, bool, error) {
	var (
		doc   models.Document
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(documentsBucket)
		if bucket == nil {
			return nil
		}

		v := bucket.Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &doc)
	})
	if err != nil {
		return models.Document{}, false, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, found, nil
}
