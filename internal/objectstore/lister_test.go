package objectstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestListOlderThan(t *testing.T) {
	now := time.Date(2023, 5, 3, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.Seed(testBucket, "p/PendingSelection/", nil, now.Add(-time.Hour), nil)
	store.Seed(testBucket, "p/PendingSelection/S/old.json", []byte("{}"), now.Add(-10*time.Minute), nil)
	store.Seed(testBucket, "p/PendingSelection/S/edge.json", []byte("{}"), now.Add(-2*time.Minute), nil)
	store.Seed(testBucket, "p/PendingSelection/S/young.json", []byte("{}"), now.Add(-time.Minute), nil)
	store.Seed(testBucket, "p/Other/S/old.json", []byte("{}"), now.Add(-time.Hour), nil)

	got := ListOlderThan(context.Background(), store, testBucket, "p/PendingSelection/", now, 2*time.Minute)

	keys := make([]string, 0, len(got))
	for _, o := range got {
		keys = append(keys, o.Key)
		if strings.HasSuffix(o.Key, "/") {
			t.Errorf("folder placeholder returned: %s", o.Key)
		}
		if o.LastModified.After(now.Add(-2 * time.Minute)) {
			t.Errorf("object younger than cutoff returned: %s", o.Key)
		}
	}
	want := "p/PendingSelection/S/edge.json,p/PendingSelection/S/old.json"
	if strings.Join(keys, ",") != want {
		t.Errorf("keys = %v, want %s", keys, want)
	}
}

func TestListOlderThan_Defaults(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(testBucket, "p/a", nil, time.Now().UTC().Add(-4*time.Minute), nil)
	store.Seed(testBucket, "p/b", nil, time.Now().UTC().Add(-6*time.Minute), nil)

	got := ListOlderThan(context.Background(), store, testBucket, "p/", time.Time{}, 0)
	if len(got) != 1 || got[0].Key != "p/b" {
		t.Errorf("expected only p/b with the 5 minute default, got %v", got)
	}
}

func TestListOlderThan_FailureYieldsEmpty(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(testBucket, "p/a", nil, time.Now().Add(-time.Hour), nil)
	store.Fault = func(op, key string) error {
		if op == OpList {
			return errors.New("AccessDenied")
		}
		return nil
	}

	if got := ListOlderThan(context.Background(), store, testBucket, "p/", time.Now(), time.Minute); len(got) != 0 {
		t.Errorf("expected empty result on listing failure, got %v", got)
	}
}

func TestObject_LastModifiedISO(t *testing.T) {
	o := Object{LastModified: time.Date(2023, 5, 3, 8, 54, 17, 123456789, time.UTC)}
	if got := o.LastModifiedISO(); got != "2023-05-03T08:54:17.123Z" {
		t.Errorf("LastModifiedISO = %q", got)
	}
}
