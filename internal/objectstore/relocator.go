package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrSameKey is returned by Move when source and destination are the same key.
var ErrSameKey = errors.New("source and destination are the same key")

// Relocator moves objects between keys and maintains their status tags.
type Relocator struct {
	Store Store
}

// NewRelocator returns a Relocator over store.
func NewRelocator(store Store) *Relocator {
	return &Relocator{Store: store}
}

// Move copies bucket/fromKey to bucket/toKey, then deletes the source.
//
// It is not transactional. If the delete fails the object exists at both
// keys; calling Move again is safe since the copy overwrites the destination
// and deleting a missing source succeeds. Moving a key onto itself fails with
// ErrSameKey before any call is issued.
func (r *Relocator) Move(ctx context.Context, bucket, fromKey, toKey string) error {
	if fromKey == toKey {
		return fmt.Errorf("move %s: %w", fromKey, ErrSameKey)
	}
	if err := r.Store.Copy(ctx, bucket, fromKey, toKey); err != nil {
		return fmt.Errorf("move %s -> %s: copy: %w", fromKey, toKey, err)
	}
	if err := r.Store.Delete(ctx, bucket, fromKey); err != nil {
		return fmt.Errorf("move %s -> %s: delete source: %w", fromKey, toKey, err)
	}
	log.Debug().Str("bucket", bucket).Str("from", fromKey).Str("to", toKey).Msg("Object moved")
	return nil
}

// GetTag returns the value of tag name on the object, and whether it was set.
func (r *Relocator) GetTag(ctx context.Context, bucket, key, name string) (string, bool, error) {
	tags, err := r.Store.GetTags(ctx, bucket, key)
	if err != nil {
		return "", false, fmt.Errorf("get tag %s: %w", name, err)
	}
	v, ok := tags.Get(name)
	return v, ok, nil
}

// SetTag upserts tag name=value by reading the full tag set and writing it back.
func (r *Relocator) SetTag(ctx context.Context, bucket, key, name, value string) error {
	_, err := r.SetTagIf(ctx, bucket, key, name, value, "")
	return err
}

// SetTagIf is SetTag guarded by the current value: when expected is non-empty
// and the tag's current value differs, nothing is written and applied is false.
//
// The guard and the write are separate calls, so a concurrent writer between
// them is not detected.
func (r *Relocator) SetTagIf(ctx context.Context, bucket, key, name, value, expected string) (applied bool, err error) {
	tags, err := r.Store.GetTags(ctx, bucket, key)
	if err != nil {
		return false, fmt.Errorf("set tag %s=%s: %w", name, value, err)
	}
	if expected != "" {
		if current, _ := tags.Get(name); current != expected {
			log.Debug().
				Str("key", key).
				Str("tag", name).
				Str("current", current).
				Str("expected", expected).
				Msg("Tag guard mismatch, not writing")
			return false, nil
		}
	}
	if err := r.Store.PutTags(ctx, bucket, key, tags.Upsert(name, value)); err != nil {
		return false, fmt.Errorf("set tag %s=%s: %w", name, value, err)
	}
	return true, nil
}
