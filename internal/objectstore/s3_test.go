package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// fakeS3 serves two listing pages and records mutating calls.
type fakeS3 struct {
	pages      [][]s3types.Object
	copyInput  *s3.CopyObjectInput
	deleted    []string
	putTagging *s3.PutObjectTaggingInput
	getErr     error
	tagSet     []s3types.Tag
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	idx := 0
	if in.ContinuationToken != nil {
		idx = 1
	}
	out := &s3.ListObjectsV2Output{Contents: f.pages[idx]}
	if idx+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("page-2")
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(`{"a":1}`)))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copyInput = in
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) GetObjectTagging(ctx context.Context, in *s3.GetObjectTaggingInput, _ ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error) {
	return &s3.GetObjectTaggingOutput{TagSet: f.tagSet}, nil
}

func (f *fakeS3) PutObjectTagging(ctx context.Context, in *s3.PutObjectTaggingInput, _ ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error) {
	f.putTagging = in
	return &s3.PutObjectTaggingOutput{}, nil
}

func TestS3Store_WalkFollowsPages(t *testing.T) {
	lm := time.Date(2023, 5, 3, 0, 0, 0, 0, time.UTC)
	fake := &fakeS3{pages: [][]s3types.Object{
		{{Key: aws.String("p/a.json"), LastModified: &lm, Size: aws.Int64(10), StorageClass: s3types.ObjectStorageClassStandard}},
		{{Key: aws.String("p/b.json"), LastModified: &lm, Size: aws.Int64(20), StorageClass: s3types.ObjectStorageClassStandard}},
	}}
	store := NewS3Store(fake)

	var got []Object
	err := store.Walk(context.Background(), testBucket, "p/", func(o Object) error {
		got = append(got, o)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Key != "p/a.json" || got[1].Size != 20 || got[1].StorageClass != "STANDARD" {
		t.Errorf("unexpected objects: %+v", got)
	}
}

func TestS3Store_CopyEncodesSource(t *testing.T) {
	fake := &fakeS3{}
	store := NewS3Store(fake)

	if err := store.Copy(context.Background(), testBucket, "a/Delivered/S 1/f+g.json", "a/x.json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(fake.copyInput.CopySource); got != "lake/a/Delivered/S%201/f+g.json" {
		t.Errorf("CopySource = %q", got)
	}
}

func TestS3Store_TagsRoundTrip(t *testing.T) {
	fake := &fakeS3{tagSet: []s3types.Tag{{Key: aws.String("Project"), Value: aws.String("lake")}}}
	store := NewS3Store(fake)

	tags, err := store.GetTags(context.Background(), testBucket, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.PutTags(context.Background(), testBucket, "k", tags.Upsert("ProcessStatus", "Rejected")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set := fake.putTagging.Tagging.TagSet
	if len(set) != 2 || aws.ToString(set[1].Key) != "ProcessStatus" || aws.ToString(set[1].Value) != "Rejected" {
		t.Errorf("unexpected tag set written: %+v", set)
	}
}

func TestS3Store_GetClassifiesErrors(t *testing.T) {
	fake := &fakeS3{getErr: &s3types.NoSuchKey{}}
	store := NewS3Store(fake)
	if _, err := store.Get(context.Background(), testBucket, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	fake.getErr = &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce request rate"}
	if _, err := store.Get(context.Background(), testBucket, "k"); !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient, got %v", err)
	}

	fake.getErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	_, err := store.Get(context.Background(), testBucket, "k")
	if err == nil || IsTransient(err) || errors.Is(err, ErrNotFound) {
		t.Errorf("expected a permanent failure, got %v", err)
	}

	fake.getErr = nil
	data, err := store.Get(context.Background(), testBucket, "k")
	if err != nil || string(data) != `{"a":1}` {
		t.Errorf("Get = %q, %v", data, err)
	}
}
