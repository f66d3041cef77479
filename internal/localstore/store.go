// Package localstore keeps the device's copy of the task list.
package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/BuzzLyutic/task-sync/internal/model"
)

var ErrNotFound = errors.New("record not found")

// StorageError reports that the local store is unavailable. Callers abort the
// current synchronization cycle when they see one.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UpdateFunc mutates a record inside a store transaction. Returning
// ErrSkip leaves the record unchanged without failing the call; returning a
// record with a different ID is an error.
type UpdateFunc func(r *model.Record) error

// ErrSkip is returned by an UpdateFunc to abandon the write.
var ErrSkip = errors.New("skip update")

// Store is the local record store. Every method is atomic per key and safe for
// concurrent use.
type Store interface {
	Put(ctx context.Context, r model.Record) error
	Get(ctx context.Context, id model.ClientID) (model.Record, error)
	Delete(ctx context.Context, id model.ClientID) error
	// ListAll returns a consistent snapshot ordered by descending CreatedAt.
	ListAll(ctx context.Context) ([]model.Record, error)
	// Replace removes old and writes r in one transaction.
	Replace(ctx context.Context, old model.ClientID, r model.Record) error
	// ReplaceFunc removes old and writes the record built by fn from old's
	// current value (found is false when old is already gone), in one
	// transaction.
	ReplaceFunc(ctx context.Context, old model.ClientID, fn func(cur model.Record, found bool) (model.Record, error)) (model.Record, error)
	// Update runs fn on the current value of id and stores the result.
	Update(ctx context.Context, id model.ClientID, fn UpdateFunc) (model.Record, error)
	// DeleteIf removes id when remove reports true for its current value.
	DeleteIf(ctx context.Context, id model.ClientID, remove func(model.Record) bool) (bool, error)
	Close() error
}

// IsStorageError reports whether err came from the storage layer.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
