// Package gatekeeper admits newly delivered objects into the data lake.
//
// For every object landing under a Delivered folder it checks the source id
// against the registry and the file extension, tags the object with its next
// stage, and relocates it either to PendingSelection or to Rejected.
// Rejected objects are moved first and reported second: the invocation fails
// only after the quarantine relocation has completed.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/datalake-ingestion/internal/lifecycle"
	"github.com/fpang/datalake-ingestion/internal/notify"
	"github.com/fpang/datalake-ingestion/internal/objectkey"
	"github.com/fpang/datalake-ingestion/internal/objectstore"
	"github.com/fpang/datalake-ingestion/internal/registry"
	"github.com/fpang/datalake-ingestion/internal/retry"
)

// RejectedError reports an object that was quarantined.
// It unwraps to lifecycle.ErrUnknownSourceID or lifecycle.ErrInvalidExtension.
type RejectedError struct {
	Key         string
	Destination string
	Err         error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected (%v), moved to %s", e.Key, e.Err, e.Destination)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Outcome describes what Process did with one object.
type Outcome struct {
	Bucket      string
	Key         string
	SourceID    string
	Stage       string
	Destination string
	// Relocated is false for placeholder objects, which are tagged only.
	Relocated bool
	Tagged    bool
	Retries   int
}

// Config holds the Gatekeeper settings.
type Config struct {
	StatusTag         string
	PlaceholderMarker string
	Retry             retry.Policy
}

// Gatekeeper processes delivered objects. It holds no per-object state and is
// safe for concurrent use.
type Gatekeeper struct {
	relocator *objectstore.Relocator
	registry  registry.Registry
	publisher notify.Publisher
	namer     objectkey.Namer
	cfg       Config
}

// Option customises a Gatekeeper.
type Option func(*Gatekeeper)

// WithPublisher publishes ObjectStaged / ObjectQuarantined events.
func WithPublisher(p notify.Publisher) Option {
	return func(g *Gatekeeper) { g.publisher = p }
}

// WithNamer overrides the clock and id source used to prefix destination names.
func WithNamer(n objectkey.Namer) Option {
	return func(g *Gatekeeper) { g.namer = n }
}

// New returns a Gatekeeper over store and reg.
func New(store objectstore.Store, reg registry.Registry, cfg Config, opts ...Option) *Gatekeeper {
	if cfg.StatusTag == "" {
		cfg.StatusTag = lifecycle.DefaultStatusTag
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = objectstore.IsTransient
	}
	g := &Gatekeeper{
		relocator: objectstore.NewRelocator(store),
		registry:  reg,
		publisher: notify.Nop{},
		namer:     objectkey.DefaultNamer,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process admits or quarantines bucket/key.
//
// It returns objectkey.ErrInvalidPathDepth without touching the object when
// the key is too shallow, a *RejectedError after quarantining an ineligible
// object, and the last store error when relocation exhausts its retries.
func (g *Gatekeeper) Process(ctx context.Context, bucket, key string) (Outcome, error) {
	out := Outcome{Bucket: bucket, Key: key}
	logger := log.With().Str("bucket", bucket).Str("key", key).Logger()

	k, err := objectkey.Parse(key)
	if err != nil {
		logger.Error().Err(err).Msg("Rejecting invocation: key too shallow")
		return out, err
	}
	out.SourceID = k.SourceID

	sources, err := g.registry.Fetch(ctx)
	if err != nil {
		return out, err
	}

	verdict := lifecycle.IsEligible(k.SourceID, k.Filename, sources)
	out.Stage, out.Destination = g.destination(k, verdict)
	logger.Info().
		Str("sourceId", k.SourceID).
		Str("filename", k.Filename).
		Str("stage", out.Stage).
		Str("destination", out.Destination).
		AnErr("verdict", verdict).
		Msg("Delivery evaluated")

	// The tag travels with the object on copy, so it is written before the move.
	tagErr := g.relocator.SetTag(ctx, bucket, key, g.cfg.StatusTag, out.Stage)
	if tagErr != nil {
		logger.Warn().Err(tagErr).Str("tag", g.cfg.StatusTag).Msg("Failed to tag object, relocating anyway")
	} else {
		out.Tagged = true
	}

	if lifecycle.IsPlaceholder(key, g.cfg.PlaceholderMarker) {
		logger.Warn().Str("destination", out.Destination).Msg("Placeholder object tagged, not moved")
	} else {
		desc := fmt.Sprintf("move s3://%s/%s -> %s", bucket, key, out.Destination)
		retries, err := g.cfg.Retry.Do(ctx, desc, func(ctx context.Context) error {
			return g.relocator.Move(ctx, bucket, key, out.Destination)
		})
		out.Retries = retries
		if err != nil {
			if tagErr != nil {
				err = errors.Join(err, tagErr)
			}
			return out, fmt.Errorf("relocate %s: %w", key, err)
		}
		out.Relocated = true
	}

	evt := notify.Event{
		Bucket:   bucket,
		Key:      out.Destination,
		FromKey:  key,
		SourceID: k.SourceID,
		Stage:    out.Stage,
	}
	if verdict != nil {
		evt.Type = notify.ObjectQuarantined
		evt.Reason = verdict.Error()
		notify.Best(ctx, g.publisher, evt)
		return out, &RejectedError{Key: key, Destination: out.Destination, Err: verdict}
	}
	evt.Type = notify.ObjectStaged
	notify.Best(ctx, g.publisher, evt)
	return out, nil
}

// destination picks the next stage and key for k given the eligibility verdict.
func (g *Gatekeeper) destination(k objectkey.Key, verdict error) (stage, key string) {
	switch {
	case verdict == nil:
		name := g.namer.PrefixName(k.Filename, objectkey.PrefixOptions{Date: true, Time: true})
		return lifecycle.StagePendingSelection, objectkey.Join(k.RootPrefix, lifecycle.StagePendingSelection, k.SourceID, name)
	case errors.Is(verdict, lifecycle.ErrUnknownSourceID):
		// The folder is not created for unregistered ids.
		name := g.namer.PrefixName(k.Filename, objectkey.PrefixOptions{UUID: true})
		return lifecycle.StageRejected, objectkey.Join(k.RootPrefix, lifecycle.StageRejected, name)
	default:
		name := g.namer.PrefixName(k.Filename, objectkey.PrefixOptions{UUID: true})
		return lifecycle.StageRejected, objectkey.Join(k.RootPrefix, lifecycle.StageRejected, k.SourceID, name)
	}
}
