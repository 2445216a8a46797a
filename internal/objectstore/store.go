// Package objectstore is the narrow object-store surface the ingestion
// pipeline depends on: listing, object bodies, server-side copy, delete and
// object tagging.
//
// S3 has no rename primitive, so relocation (see Relocator) is copy followed
// by delete. Status tags are read-modify-write over the full tag set, which
// means two writers on the same object race and the last full write wins.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransient marks store-call failures that are worth retrying.
	ErrTransient = errors.New("transient object store failure")
	// ErrNotFound marks operations on keys that do not exist.
	ErrNotFound = errors.New("object not found")
)

// Object is one listed object.
type Object struct {
	Key          string
	LastModified time.Time
	Size         int64
	StorageClass string
}

// LastModifiedISO formats LastModified as YYYY-MM-DDTHH:MM:SS.mmmZ.
func (o Object) LastModifiedISO() string {
	return o.LastModified.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Store is implemented by S3Store and MemoryStore.
type Store interface {
	// Walk calls fn for every object under prefix, page by page, in key order.
	// Returning an error from fn stops the walk and returns that error.
	Walk(ctx context.Context, bucket, prefix string, fn func(Object) error) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	// Copy duplicates an object, tags included.
	Copy(ctx context.Context, bucket, fromKey, toKey string) error
	Delete(ctx context.Context, bucket, key string) error
	GetTags(ctx context.Context, bucket, key string) (TagSet, error)
	PutTags(ctx context.Context, bucket, key string, tags TagSet) error
}

// OpError describes a failed store call. It matches ErrNotFound when the key
// was missing, nothing when the failure is permanent (access denied, missing
// bucket), and ErrTransient otherwise.
type OpError struct {
	Op        string
	Bucket    string
	Key       string
	NotFound  bool
	Permanent bool
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s s3://%s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func (e *OpError) Is(target error) bool {
	switch {
	case e.NotFound:
		return target == ErrNotFound
	case e.Permanent:
		return false
	}
	return target == ErrTransient
}

// IsTransient reports whether err is a store failure worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
