package objectstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Operation names recorded by MemoryStore.
const (
	OpList    = "List"
	OpGet     = "Get"
	OpPut     = "Put"
	OpCopy    = "Copy"
	OpDelete  = "Delete"
	OpGetTags = "GetTags"
	OpPutTags = "PutTags"
)

// Call is one recorded MemoryStore call.
type Call struct {
	Op  string
	Key string
}

type memObject struct {
	body         []byte
	contentType  string
	tags         TagSet
	lastModified time.Time
	storageClass string
}

// MemoryStore is an in-process Store used by tests and local dry runs.
// It records every call and supports per-operation fault injection.
type MemoryStore struct {
	// Now stamps LastModified on writes. Defaults to time.Now.
	Now func() time.Time
	// Fault, when set, is consulted before every call; a non-nil return fails the call.
	Fault func(op, key string) error

	mu      sync.Mutex
	buckets map[string]map[string]*memObject
	calls   []Call
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]*memObject)}
}

// Seed writes an object with an explicit last-modified time and tags, without recording a call.
func (m *MemoryStore) Seed(bucket, key string, body []byte, lastModified time.Time, tags TagSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(bucket)[key] = &memObject{
		body:         body,
		tags:         append(TagSet(nil), tags...),
		lastModified: lastModified,
		storageClass: "STANDARD",
	}
}

// Exists reports whether key is present.
func (m *MemoryStore) Exists(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bucket(bucket)[key]
	return ok
}

// Keys returns every key in bucket, sorted.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.bucket(bucket)))
	for k := range m.bucket(bucket) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tags returns the tags on key without recording a call.
func (m *MemoryStore) Tags(bucket, key string) TagSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.bucket(bucket)[key]; ok {
		return append(TagSet(nil), o.tags...)
	}
	return nil
}

// Calls returns the recorded calls so far.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CountCalls returns how many calls of op were recorded.
func (m *MemoryStore) CountCalls(op string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *MemoryStore) Walk(ctx context.Context, bucket, prefix string, fn func(Object) error) error {
	m.mu.Lock()
	if err := m.enter(OpList, bucket, prefix); err != nil {
		m.mu.Unlock()
		return err
	}
	var objs []Object
	for k, o := range m.bucket(bucket) {
		if strings.HasPrefix(k, prefix) {
			objs = append(objs, Object{Key: k, LastModified: o.lastModified, Size: int64(len(o.body)), StorageClass: o.storageClass})
		}
	}
	m.mu.Unlock()

	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpGet, bucket, key); err != nil {
		return nil, err
	}
	o, ok := m.bucket(bucket)[key]
	if !ok {
		return nil, missing(OpGet, bucket, key)
	}
	return append([]byte(nil), o.body...), nil
}

func (m *MemoryStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpPut, bucket, key); err != nil {
		return err
	}
	m.bucket(bucket)[key] = &memObject{
		body:         append([]byte(nil), body...),
		contentType:  contentType,
		lastModified: m.now(),
		storageClass: "STANDARD",
	}
	return nil
}

func (m *MemoryStore) Copy(ctx context.Context, bucket, fromKey, toKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCopy, bucket, fromKey); err != nil {
		return err
	}
	src, ok := m.bucket(bucket)[fromKey]
	if !ok {
		return missing(OpCopy, bucket, fromKey)
	}
	m.bucket(bucket)[toKey] = &memObject{
		body:         append([]byte(nil), src.body...),
		contentType:  src.contentType,
		tags:         append(TagSet(nil), src.tags...),
		lastModified: m.now(),
		storageClass: src.storageClass,
	}
	return nil
}

// Delete is idempotent, matching S3: deleting a missing key succeeds.
func (m *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpDelete, bucket, key); err != nil {
		return err
	}
	delete(m.bucket(bucket), key)
	return nil
}

func (m *MemoryStore) GetTags(ctx context.Context, bucket, key string) (TagSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpGetTags, bucket, key); err != nil {
		return nil, err
	}
	o, ok := m.bucket(bucket)[key]
	if !ok {
		return nil, missing(OpGetTags, bucket, key)
	}
	return append(TagSet(nil), o.tags...), nil
}

func (m *MemoryStore) PutTags(ctx context.Context, bucket, key string, tags TagSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpPutTags, bucket, key); err != nil {
		return err
	}
	o, ok := m.bucket(bucket)[key]
	if !ok {
		return missing(OpPutTags, bucket, key)
	}
	o.tags = append(TagSet(nil), tags...)
	return nil
}

// enter records the call and applies fault injection. m.mu must be held.
func (m *MemoryStore) enter(op, bucket, key string) error {
	m.calls = append(m.calls, Call{Op: op, Key: key})
	if m.Fault != nil {
		if err := m.Fault(op, key); err != nil {
			return opError(op, bucket, key, err)
		}
	}
	return nil
}

func (m *MemoryStore) bucket(name string) map[string]*memObject {
	if m.buckets == nil {
		m.buckets = make(map[string]map[string]*memObject)
	}
	b, ok := m.buckets[name]
	if !ok {
		b = make(map[string]*memObject)
		m.buckets[name] = b
	}
	return b
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func missing(op, bucket, key string) error {
	return &OpError{Op: op, Bucket: bucket, Key: key, NotFound: true, Err: errors.New("NoSuchKey")}
}
