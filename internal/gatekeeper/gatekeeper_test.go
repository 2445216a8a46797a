package gatekeeper

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/smithy-go"

	"github.com/fpang/datalake-ingestion/internal/lifecycle"
	"github.com/fpang/datalake-ingestion/internal/metrics"
	"github.com/fpang/datalake-ingestion/internal/notify"
	"github.com/fpang/datalake-ingestion/internal/objectkey"
	"github.com/fpang/datalake-ingestion/internal/objectstore"
	"github.com/fpang/datalake-ingestion/internal/registry"
	"github.com/fpang/datalake-ingestion/internal/retry"
)

const bucket = "lake"

func TestMain(m *testing.M) {
	metrics.Output = io.Discard
	os.Exit(m.Run())
}

type recordingPublisher struct {
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) error {
	p.events = append(p.events, e)
	return nil
}

func noSleepPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Backoff:     retry.Fixed(5 * time.Second),
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func fixedNamer() objectkey.Namer {
	return objectkey.Namer{
		Now:   func() time.Time { return time.Date(2023, 5, 3, 8, 54, 17, 0, time.UTC) },
		NewID: func() string { return "0b7e3c1e-uuid" },
	}
}

func newTestGatekeeper(store objectstore.Store, sources string, pub notify.Publisher) *Gatekeeper {
	reg := &registry.Static{Sources: registry.Sources{Raw: sources, Mode: registry.MatchSubstring}}
	return New(store, reg, Config{
		PlaceholderMarker: lifecycle.DefaultPlaceholderMarker,
		Retry:             noSleepPolicy(),
	}, WithNamer(fixedNamer()), WithPublisher(pub))
}

func seed(store *objectstore.MemoryStore, key string) {
	store.Seed(bucket, key, []byte(`{"total":"1.0"}`), time.Now(), nil)
}

func TestProcess_ValidDelivery(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/SRC1/data.json")
	pub := &recordingPublisher{}
	g := newTestGatekeeper(store, "SRC1,SRC2", pub)

	out, err := g.Process(context.Background(), bucket, "Bronze/Delivered/SRC1/data.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Bronze/PendingSelection/SRC1/20230503_085417_data.json"
	if out.Destination != want {
		t.Errorf("destination = %s, want %s", out.Destination, want)
	}
	if !store.Exists(bucket, want) || store.Exists(bucket, "Bronze/Delivered/SRC1/data.json") {
		t.Errorf("object not relocated, keys = %v", store.Keys(bucket))
	}
	if v, _ := store.Tags(bucket, want).Get(lifecycle.DefaultStatusTag); v != lifecycle.StagePendingSelection {
		t.Errorf("status tag = %q", v)
	}
	if !out.Relocated || !out.Tagged || out.Retries != 0 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if len(pub.events) != 1 || pub.events[0].Type != notify.ObjectStaged {
		t.Errorf("expected one ObjectStaged event, got %+v", pub.events)
	}
}

func TestProcess_UnknownSource(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/BADSRC/data.json")
	pub := &recordingPublisher{}
	g := newTestGatekeeper(store, "SRC1", pub)

	out, err := g.Process(context.Background(), bucket, "Bronze/Delivered/BADSRC/data.json")

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if !errors.Is(err, lifecycle.ErrUnknownSourceID) {
		t.Errorf("expected ErrUnknownSourceID, got %v", err)
	}

	want := "Bronze/Rejected/0b7e3c1e-uuid_data.json"
	if out.Destination != want || rejected.Destination != want {
		t.Errorf("destination = %s, want %s", out.Destination, want)
	}
	if !store.Exists(bucket, want) {
		t.Fatalf("expected quarantine before failure, keys = %v", store.Keys(bucket))
	}
	if store.Exists(bucket, "Bronze/Delivered/BADSRC/data.json") {
		t.Error("expected source to be removed")
	}
	if v, _ := store.Tags(bucket, want).Get(lifecycle.DefaultStatusTag); v != lifecycle.StageRejected {
		t.Errorf("status tag = %q", v)
	}
	if len(pub.events) != 1 || pub.events[0].Type != notify.ObjectQuarantined || pub.events[0].Reason == "" {
		t.Errorf("expected ObjectQuarantined event with reason, got %+v", pub.events)
	}
}

func TestProcess_InvalidExtension(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/SRC1/data.csv")
	g := newTestGatekeeper(store, "SRC1", nil)

	out, err := g.Process(context.Background(), bucket, "Bronze/Delivered/SRC1/data.csv")
	if !errors.Is(err, lifecycle.ErrInvalidExtension) {
		t.Fatalf("expected ErrInvalidExtension, got %v", err)
	}
	want := "Bronze/Rejected/SRC1/0b7e3c1e-uuid_data.csv"
	if out.Destination != want || !store.Exists(bucket, want) {
		t.Errorf("expected quarantine at %s, keys = %v", want, store.Keys(bucket))
	}
}

func TestProcess_InvalidPathDepth(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "A/B/data.json")
	reg := &registry.Static{Sources: registry.Sources{Raw: "B"}}
	g := New(store, reg, Config{Retry: noSleepPolicy()})

	_, err := g.Process(context.Background(), bucket, "A/B/data.json")
	if !errors.Is(err, objectkey.ErrInvalidPathDepth) {
		t.Fatalf("expected ErrInvalidPathDepth, got %v", err)
	}
	if calls := store.Calls(); len(calls) != 0 {
		t.Errorf("expected no store calls, got %v", calls)
	}
	if reg.Calls != 0 {
		t.Errorf("expected no registry lookup, got %d", reg.Calls)
	}
}

func TestProcess_RegistryFailure(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/SRC1/data.json")
	reg := &registry.Static{Err: errors.New("ssm unavailable")}
	g := New(store, reg, Config{Retry: noSleepPolicy()})

	if _, err := g.Process(context.Background(), bucket, "Bronze/Delivered/SRC1/data.json"); err == nil {
		t.Fatal("expected error")
	}
	if !store.Exists(bucket, "Bronze/Delivered/SRC1/data.json") {
		t.Error("object must stay in place when the registry cannot be read")
	}
}

func TestProcess_TransientFailureRetried(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/SRC1/data.json")
	failures := 2
	store.Fault = func(op, key string) error {
		if op == objectstore.OpCopy && failures > 0 {
			failures--
			return errors.New("SlowDown")
		}
		return nil
	}
	g := newTestGatekeeper(store, "SRC1", nil)

	out, err := g.Process(context.Background(), bucket, "Bronze/Delivered/SRC1/data.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", out.Retries)
	}
	if n := store.CountCalls(objectstore.OpCopy); n != 3 {
		t.Errorf("expected 3 copy attempts, got %d", n)
	}
}

func TestProcess_TransientFailureExhausted(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/SRC1/data.json")
	store.Fault = func(op, key string) error {
		if op == objectstore.OpCopy {
			return errors.New("SlowDown")
		}
		return nil
	}
	g := newTestGatekeeper(store, "SRC1", nil)

	_, err := g.Process(context.Background(), bucket, "Bronze/Delivered/SRC1/data.json")
	if !errors.Is(err, objectstore.ErrTransient) {
		t.Fatalf("expected transient store failure, got %v", err)
	}
	if n := store.CountCalls(objectstore.OpCopy); n != 3 {
		t.Errorf("expected 3 copy attempts, got %d", n)
	}
	if v, _ := store.Tags(bucket, "Bronze/Delivered/SRC1/data.json").Get(lifecycle.DefaultStatusTag); v != lifecycle.StagePendingSelection {
		t.Errorf("expected tag to be written even though relocation failed, got %q", v)
	}
}

func TestProcess_MissingSourceNotRetried(t *testing.T) {
	store := objectstore.NewMemoryStore()
	g := newTestGatekeeper(store, "SRC1", nil)

	out, err := g.Process(context.Background(), bucket, "Bronze/Delivered/SRC1/data.json")
	if !errors.Is(err, objectstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := store.CountCalls(objectstore.OpCopy); n != 1 {
		t.Errorf("expected 1 copy attempt, got %d", n)
	}
	if out.Retries != 0 || out.Relocated {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestProcess_PermanentFailureNotRetried(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/SRC1/data.json")
	store.Fault = func(op, key string) error {
		if op == objectstore.OpCopy {
			return &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
		}
		return nil
	}
	g := newTestGatekeeper(store, "SRC1", nil)

	if _, err := g.Process(context.Background(), bucket, "Bronze/Delivered/SRC1/data.json"); err == nil {
		t.Fatal("expected error")
	}
	if n := store.CountCalls(objectstore.OpCopy); n != 1 {
		t.Errorf("expected 1 copy attempt, got %d", n)
	}
}

func TestProcess_TagFailureDoesNotBlockRelocation(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/SRC1/data.json")
	store.Fault = func(op, key string) error {
		if op == objectstore.OpPutTags {
			return errors.New("AccessDenied")
		}
		return nil
	}
	g := newTestGatekeeper(store, "SRC1", nil)

	out, err := g.Process(context.Background(), bucket, "Bronze/Delivered/SRC1/data.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Tagged || !out.Relocated {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestProcess_PlaceholderTaggedNotMoved(t *testing.T) {
	store := objectstore.NewMemoryStore()
	key := "Bronze/Delivered/SRC1/PlaceHolder.json"
	seed(store, key)
	g := newTestGatekeeper(store, "SRC1", nil)

	out, err := g.Process(context.Background(), bucket, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Relocated || !store.Exists(bucket, key) {
		t.Error("placeholder must stay in place")
	}
	if v, _ := store.Tags(bucket, key).Get(lifecycle.DefaultStatusTag); v != lifecycle.StagePendingSelection {
		t.Errorf("expected placeholder to be tagged, got %q", v)
	}
}

func TestHandler_Handle(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/SRC1/my data.json")
	seed(store, "Bronze/Delivered/BADSRC/data.json")
	seed(store, "Bronze/Landing/SRC1/data.json")
	h := &Handler{Gatekeeper: newTestGatekeeper(store, "SRC1", nil)}

	evt := events.S3Event{Records: []events.S3EventRecord{
		s3Record("Bronze/Delivered/SRC1/my+data.json"),
		s3Record("Bronze/Delivered/BADSRC/data.json"),
		s3Record("Bronze/Landing/SRC1/data.json"),
	}}

	uris, err := h.Handle(context.Background(), evt)
	if err == nil || !errors.Is(err, lifecycle.ErrUnknownSourceID) {
		t.Fatalf("expected joined rejection error, got %v", err)
	}
	if len(uris) != 3 || uris[0] != "s3://lake/Bronze/Delivered/SRC1/my data.json" {
		t.Errorf("uris = %v", uris)
	}
	if !store.Exists(bucket, "Bronze/PendingSelection/SRC1/20230503_085417_my data.json") {
		t.Errorf("expected decoded key to be staged, keys = %v", store.Keys(bucket))
	}
	if !store.Exists(bucket, "Bronze/Landing/SRC1/data.json") {
		t.Error("objects outside the delivered area must be ignored")
	}
	for _, k := range store.Keys(bucket) {
		if strings.Contains(k, "Delivered") {
			t.Errorf("delivered object left behind: %s", k)
		}
	}
}

func TestHandler_AllValid(t *testing.T) {
	store := objectstore.NewMemoryStore()
	seed(store, "Bronze/Delivered/SRC1/a.json")
	h := &Handler{Gatekeeper: newTestGatekeeper(store, "SRC1", nil), DeliveredMarker: "/Delivered/"}

	if _, err := h.Handle(context.Background(), events.S3Event{Records: []events.S3EventRecord{s3Record("Bronze/Delivered/SRC1/a.json")}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func s3Record(key string) events.S3EventRecord {
	var r events.S3EventRecord
	r.S3.Bucket.Name = bucket
	r.S3.Object.Key = key
	return r
}
