package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/BuzzLyutic/task-sync/internal/model"
)

var tasksBucket = []byte("tasks")

// BoltStore is a Store backed by a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tasksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(ctx context.Context, r model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update("put", func(b *bolt.Bucket) error {
		return putRecord(b, r)
	})
}

func (s *BoltStore) Get(ctx context.Context, id model.ClientID) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}

	var rec model.Record
	err := s.view("get", func(b *bolt.Bucket) error {
		var err error
		rec, err = getRecord(b, id)
		return err
	})
	return rec, err
}

func (s *BoltStore) Delete(ctx context.Context, id model.ClientID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update("delete", func(b *bolt.Bucket) error {
		return deleteKey(b, id)
	})
}

func (s *BoltStore) ListAll(ctx context.Context) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []model.Record
	err := s.view("list", func(b *bolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			var r model.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return &StorageError{Op: "decode", Err: fmt.Errorf("%s: %w", k, err)}
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	SortByCreatedDesc(records)
	return records, nil
}

func (s *BoltStore) Replace(ctx context.Context, old model.ClientID, r model.Record) error {
	_, err := s.ReplaceFunc(ctx, old, func(model.Record, bool) (model.Record, error) {
		return r, nil
	})
	return err
}

func (s *BoltStore) ReplaceFunc(ctx context.Context, old model.ClientID, fn func(cur model.Record, found bool) (model.Record, error)) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}

	var out model.Record
	err := s.update("replace", func(b *bolt.Bucket) error {
		cur, err := getRecord(b, old)
		found := err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		out, err = fn(cur, found)
		if err != nil {
			return err
		}
		if found {
			if err := deleteKey(b, old); err != nil {
				return err
			}
		}
		return putRecord(b, out)
	})
	return out, err
}

func (s *BoltStore) Update(ctx context.Context, id model.ClientID, fn UpdateFunc) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}

	var out model.Record
	err := s.update("update", func(b *bolt.Bucket) error {
		rec, err := getRecord(b, id)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			out = rec
			return err
		}
		if rec.ID != id {
			return fmt.Errorf("update %s: id changed to %s", id, rec.ID)
		}
		out = rec
		return putRecord(b, rec)
	})
	if errors.Is(err, ErrSkip) {
		return out, nil
	}
	return out, err
}

func (s *BoltStore) DeleteIf(ctx context.Context, id model.ClientID, remove func(model.Record) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var deleted bool
	err := s.update("delete", func(b *bolt.Bucket) error {
		rec, err := getRecord(b, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !remove(rec) {
			return nil
		}
		deleted = true
		return deleteKey(b, id)
	})
	return deleted, err
}

// update runs fn in a read-write transaction. Errors returned by fn pass
// through as is; failures of the transaction itself become StorageErrors.
func (s *BoltStore) update(op string, fn func(b *bolt.Bucket) error) error {
	var fnErr error
	err := s.db.Update(func(tx *bolt.Tx) error {
		fnErr = fn(tx.Bucket(tasksBucket))
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

func (s *BoltStore) view(op string, fn func(b *bolt.Bucket) error) error {
	var fnErr error
	err := s.db.View(func(tx *bolt.Tx) error {
		fnErr = fn(tx.Bucket(tasksBucket))
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

func getRecord(b *bolt.Bucket, id model.ClientID) (model.Record, error) {
	v := b.Get([]byte(id.String()))
	if v == nil {
		return model.Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	var r model.Record
	if err := json.Unmarshal(v, &r); err != nil {
		return model.Record{}, &StorageError{Op: "decode", Err: err}
	}
	return r, nil
}

func putRecord(b *bolt.Bucket, r model.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	v, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := b.Put([]byte(r.ID.String()), v); err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	return nil
}

func deleteKey(b *bolt.Bucket, id model.ClientID) error {
	if err := b.Delete([]byte(id.String())); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// SortByCreatedDesc orders records newest first; ties fall back to the client
// id text so the order is deterministic.
func SortByCreatedDesc(records []model.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].ID.String() < records[j].ID.String()
	})
}
