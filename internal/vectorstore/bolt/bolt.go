package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"finrag/internal/domain"
	"finrag/internal/vectorstore"
)

var (
	metaBucket    = []byte("meta")
	recordsBucket = []byte("records")
	idsBucket     = []byte("ids")
	dimensionKey  = []byte("dimension")
)

// openTimeout bounds the wait for the file lock held by another process.
const openTimeout = time.Second

// Storage keeps every collection as a top-level bucket in one BoltDB file.
// Search is brute-force cosine over the collection.
type Storage struct {
	db     *bolt.DB
	logger *zap.Logger
}

type storedRecord struct {
	ID       string            `json:"id"`
	Vector   []float32         `json:"vector"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Open opens or creates the database at path.
func Open(path string, logger *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for BoltDB: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}
	return &Storage{db: db, logger: logger}, nil
}

func bucketName(name string) []byte { return []byte("collection:" + name) }

// ResetCollection drops the named collection if present and creates it empty.
func (s *Storage) ResetCollection(ctx context.Context, name string, dimension int) (domain.Collection, error) {
	if dimension <= 0 {
		return nil, errors.New("invalid dimension")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		key := bucketName(name)
		if tx.Bucket(key) != nil {
			if err := tx.DeleteBucket(key); err != nil {
				return err
			}
		} else {
			s.logger.Info("collection not found, creating new one", zap.String("collection", name))
		}
		root, err := tx.CreateBucket(key)
		if err != nil {
			return err
		}
		meta, err := root.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		if _, err := root.CreateBucket(recordsBucket); err != nil {
			return err
		}
		if _, err := root.CreateBucket(idsBucket); err != nil {
			return err
		}
		return meta.Put(dimensionKey, itob(uint64(dimension)))
	})
	if err != nil {
		return nil, fmt.Errorf("reset collection %s: %w", name, err)
	}
	return &Collection{db: s.db, name: name, dimension: dimension}, nil
}

func (s *Storage) Collection(ctx context.Context, name string) (domain.Collection, error) {
	var dim int
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketName(name))
		if root == nil {
			return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
		}
		v := root.Bucket(metaBucket).Get(dimensionKey)
		if len(v) != 8 {
			return fmt.Errorf("collection %s has no dimension", name)
		}
		dim = int(binary.BigEndian.Uint64(v))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Collection{db: s.db, name: name, dimension: dim}, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Collection is a handle on one bucket. Each call runs in its own transaction.
type Collection struct {
	db        *bolt.DB
	name      string
	dimension int
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) root(tx *bolt.Tx) (*bolt.Bucket, error) {
	root := tx.Bucket(bucketName(c.name))
	if root == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, c.name)
	}
	return root, nil
}

// Add writes all records in a single transaction; nothing is written if any
// record is rejected.
func (c *Collection) Add(ctx context.Context, records []domain.Record) error {
	if err := vectorstore.ValidateRecords(records, c.dimension); err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		root, err := c.root(tx)
		if err != nil {
			return err
		}
		recs, ids := root.Bucket(recordsBucket), root.Bucket(idsBucket)
		for _, r := range records {
			if ids.Get([]byte(r.ID)) != nil {
				return fmt.Errorf("%w: id %s already in collection %s", domain.ErrInsertion, r.ID, c.name)
			}
			seq, err := recs.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(storedRecord{ID: r.ID, Vector: r.Vector, Text: r.Text, Metadata: r.Metadata})
			if err != nil {
				return err
			}
			if err := recs.Put(itob(seq), data); err != nil {
				return err
			}
			if err := ids.Put([]byte(r.ID), itob(seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Collection) Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("query dimension %d, collection %s expects %d", len(vector), c.name, c.dimension)
	}
	if k <= 0 {
		k = 5
	}
	var hits []domain.Hit
	err := c.db.View(func(tx *bolt.Tx) error {
		root, err := c.root(tx)
		if err != nil {
			return err
		}
		return root.Bucket(recordsBucket).ForEach(func(_, v []byte) error {
			var r storedRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt record in %s: %w", c.name, err)
			}
			hits = append(hits, domain.Hit{
				ID:          r.ID,
				ParagraphID: r.Metadata[domain.MetaParagraphID],
				Text:        r.Text,
				Score:       vectorstore.Cosine(vector, r.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return vectorstore.TopK(hits, k), nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		root, err := c.root(tx)
		if err != nil {
			return err
		}
		return root.Bucket(idsBucket).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
