package storage

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("storage unavailable")

// Storage is a durable string key-value store used to persist the client
// session between process runs. Missing keys are reported with ok == false,
// not with an error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	// Apply writes and deletes in one step. Backends that support it apply
	// the batch atomically.
	Apply(ctx context.Context, batch Batch) error
}

// Batch groups writes and deletes that belong to one session mutation.
// A key present in both Set and Delete is deleted.
type Batch struct {
	Set    map[string]string
	Delete []string
}

// Empty reports whether the batch has nothing to do.
func (b Batch) Empty() bool {
	return len(b.Set) == 0 && len(b.Delete) == 0
}

func (b Batch) sets() map[string]string {
	if len(b.Delete) == 0 {
		return b.Set
	}
	out := make(map[string]string, len(b.Set))
	for k, v := range b.Set {
		out[k] = v
	}
	for _, k := range b.Delete {
		delete(out, k)
	}
	return out
}
