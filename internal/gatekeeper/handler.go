package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/fpang/datalake-ingestion/internal/metrics"
	"github.com/fpang/datalake-ingestion/internal/objectkey"
)

// DefaultDeliveredMarker limits the trigger to keys under a Delivered folder.
const DefaultDeliveredMarker = "/Delivered/"

// Handler adapts S3 ObjectCreated notifications to Gatekeeper.Process.
type Handler struct {
	Gatekeeper *Gatekeeper
	// DeliveredMarker must occur in a key for it to be processed.
	DeliveredMarker string
	// Namespace is the CloudWatch metric namespace.
	Namespace string
}

// Handle processes every record of evt and returns the s3:// URIs it saw.
// Records outside the delivered area are ignored. Failures are collected and
// returned together once all records have been processed, so the trigger
// reports the invocation as failed.
func (h *Handler) Handle(ctx context.Context, evt events.S3Event) ([]string, error) {
	start := time.Now()
	marker := h.DeliveredMarker
	if marker == "" {
		marker = DefaultDeliveredMarker
	}
	rec := metrics.New(h.Namespace).Dimension("Component", "gatekeeper")
	defer rec.Flush()

	var uris []string
	var errs []error
	for _, r := range evt.Records {
		bucket := r.S3.Bucket.Name
		key, err := decodeKey(r.S3.Object.Key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		uris = append(uris, "s3://"+bucket+"/"+key)

		if !strings.Contains(key, marker) {
			log.Warn().Str("bucket", bucket).Str("key", key).Str("marker", marker).Msg("Ignoring object outside the delivered area")
			rec.Count("ObjectsIgnored")
			continue
		}

		out, err := h.Gatekeeper.Process(ctx, bucket, key)
		rec.Add("RelocationRetries", out.Retries)
		var rejected *RejectedError
		switch {
		case err == nil:
			rec.Count("ObjectsStaged")
		case errors.As(err, &rejected):
			rec.Count("ObjectsQuarantined")
			log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Delivery quarantined")
			errs = append(errs, err)
		case errors.Is(err, objectkey.ErrInvalidPathDepth):
			rec.Count("InvalidPathDepth")
			errs = append(errs, err)
		default:
			rec.Count("ObjectsFailed")
			log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Gatekeeper failed")
			errs = append(errs, err)
		}
	}

	rec.Duration("HandlerMs", time.Since(start))
	return uris, errors.Join(errs...)
}

// decodeKey reverses the form encoding S3 applies to keys in event notifications.
func decodeKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("decode object key %q: %w", raw, err)
	}
	return key, nil
}
