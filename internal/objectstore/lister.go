package objectstore

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSettleAge is used by ListOlderThan when no positive age is given.
const DefaultSettleAge = 5 * time.Minute

// ListOlderThan returns the objects under prefix whose LastModified is at or
// before now-minAge, skipping folder placeholders (keys ending in "/").
//
// Younger objects are not errors: they are still inside the eventual
// consistency window and will be picked up by a later call. A listing failure
// is logged and yields an empty result, so callers cannot tell "nothing
// ready" from "listing failed".
func ListOlderThan(ctx context.Context, store Store, bucket, prefix string, now time.Time, minAge time.Duration) []Object {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if minAge <= 0 {
		minAge = DefaultSettleAge
	}
	cutoff := now.Add(-minAge)

	var out []Object
	err := store.Walk(ctx, bucket, prefix, func(o Object) error {
		if o.Key == "" || strings.HasSuffix(o.Key, "/") {
			return nil
		}
		if o.LastModified.After(cutoff) {
			return nil
		}
		out = append(out, o)
		return nil
	})
	if err != nil {
		log.Error().Err(err).
			Str("bucket", bucket).
			Str("prefix", prefix).
			Time("cutoff", cutoff).
			Dur("minAge", minAge).
			Msg("Cannot list settled objects")
		return nil
	}

	log.Debug().
		Str("bucket", bucket).
		Str("prefix", prefix).
		Time("cutoff", cutoff).
		Int("count", len(out)).
		Msg("Listed settled objects")
	return out
}
