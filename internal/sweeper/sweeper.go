// Package sweeper promotes settled PendingSelection objects to
// PendingValidations.
//
// A sweep re-checks every candidate against the same eligibility rule the
// gatekeeper applies. Ineligible objects are left where they are for a later
// sweep or manual intervention; the sweeper never deletes or rejects.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/datalake-ingestion/internal/lifecycle"
	"github.com/fpang/datalake-ingestion/internal/metrics"
	"github.com/fpang/datalake-ingestion/internal/notify"
	"github.com/fpang/datalake-ingestion/internal/objectkey"
	"github.com/fpang/datalake-ingestion/internal/objectstore"
	"github.com/fpang/datalake-ingestion/internal/registry"
	"github.com/fpang/datalake-ingestion/internal/retry"
)

// DefaultMinAge is how long an object must sit in PendingSelection before it is swept.
const DefaultMinAge = 2 * time.Minute

// Config holds the Sweeper settings.
type Config struct {
	Bucket            string
	RootPrefix        string
	StatusTag         string
	PlaceholderMarker string
	MinAge            time.Duration
	Retry             retry.Policy
}

// Skip is one candidate left in place, with the reason.
type Skip struct {
	Key    string
	Reason error
}

// Failure is one candidate whose promotion failed.
type Failure struct {
	Key string
	Err error
}

// Report summarises one sweep.
type Report struct {
	Listed   int
	Promoted []string
	Skipped  []Skip
	Failed   []Failure
	Retries  int
	Duration time.Duration
}

// Err joins the per-object failures, or returns nil when there were none.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Key, f.Err))
	}
	return errors.Join(errs...)
}

// Record adds the report counters to rec.
func (r Report) Record(rec *metrics.Recorder) {
	rec.Add("CandidatesListed", r.Listed).
		Add("ObjectsPromoted", len(r.Promoted)).
		Add("ObjectsSkipped", len(r.Skipped)).
		Add("ObjectsFailed", len(r.Failed)).
		Add("RelocationRetries", r.Retries).
		Duration("SweepMs", r.Duration)
}

// Summary is the JSON form of a Report.
type Summary struct {
	Listed     int      `json:"listed"`
	Promoted   []string `json:"promoted"`
	Skipped    int      `json:"skipped"`
	Failed     []string `json:"failed,omitempty"`
	Retries    int      `json:"retries"`
	DurationMs int64    `json:"durationMs"`
}

// Summary returns the report with failures reduced to their keys.
func (r Report) Summary() Summary {
	s := Summary{
		Listed:     r.Listed,
		Promoted:   r.Promoted,
		Skipped:    len(r.Skipped),
		Retries:    r.Retries,
		DurationMs: r.Duration.Milliseconds(),
	}
	for _, f := range r.Failed {
		s.Failed = append(s.Failed, f.Key)
	}
	return s
}

// Sweeper runs sweeps over one bucket and root prefix.
type Sweeper struct {
	store     objectstore.Store
	relocator *objectstore.Relocator
	registry  registry.Registry
	publisher notify.Publisher
	now       func() time.Time
	cfg       Config
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithPublisher publishes an ObjectPromoted event per promoted object.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Sweeper) { s.publisher = p }
}

// WithClock overrides the clock used to compute the age cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New returns a Sweeper.
func New(store objectstore.Store, reg registry.Registry, cfg Config, opts ...Option) *Sweeper {
	if cfg.StatusTag == "" {
		cfg.StatusTag = lifecycle.DefaultStatusTag
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = DefaultMinAge
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = objectstore.IsTransient
	}
	s := &Sweeper{
		store:     store,
		relocator: objectstore.NewRelocator(store),
		registry:  reg,
		publisher: notify.Nop{},
		now:       func() time.Time { return time.Now().UTC() },
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefix returns the listing prefix of the sweep.
func (s *Sweeper) Prefix() string {
	return objectkey.Join(s.cfg.RootPrefix, lifecycle.StagePendingSelection) + "/"
}

// Run performs one sweep. Only a registry failure aborts it; per-object
// failures are recorded in the report and the sweep moves on.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	var rep Report

	sources, err := s.registry.Fetch(ctx)
	if err != nil {
		return rep, err
	}

	candidates := objectstore.ListOlderThan(ctx, s.store, s.cfg.Bucket, s.Prefix(), s.now(), s.cfg.MinAge)
	rep.Listed = len(candidates)
	log.Info().
		Str("bucket", s.cfg.Bucket).
		Str("prefix", s.Prefix()).
		Dur("minAge", s.cfg.MinAge).
		Int("candidates", rep.Listed).
		Msg("Sweep started")

	for _, obj := range candidates {
		if err := ctx.Err(); err != nil {
			rep.Failed = append(rep.Failed, Failure{Key: obj.Key, Err: err})
			break
		}
		s.promote(ctx, obj, sources, &rep)
	}

	rep.Duration = time.Since(start)
	log.Info().
		Int("listed", rep.Listed).
		Int("promoted", len(rep.Promoted)).
		Int("skipped", len(rep.Skipped)).
		Int("failed", len(rep.Failed)).
		Dur("duration", rep.Duration).
		Msg("Sweep complete")
	return rep, nil
}

func (s *Sweeper) promote(ctx context.Context, obj objectstore.Object, sources registry.Sources, rep *Report) {
	logger := log.With().Str("key", obj.Key).Str("lastModified", obj.LastModifiedISO()).Logger()

	k, err := objectkey.Parse(obj.Key)
	if err != nil {
		logger.Info().AnErr("reason", err).Msg("Skipping object")
		rep.Skipped = append(rep.Skipped, Skip{Key: obj.Key, Reason: err})
		return
	}
	if k.Stage != lifecycle.StagePendingSelection {
		// Nested deeper than <root>/PendingSelection/<src>/<file>.
		reason := fmt.Errorf("%w: %q", lifecycle.ErrUnexpectedStage, k.Stage)
		logger.Info().AnErr("reason", reason).Msg("Skipping object outside the selection layout")
		rep.Skipped = append(rep.Skipped, Skip{Key: obj.Key, Reason: reason})
		return
	}
	if err := lifecycle.IsEligible(k.SourceID, k.Filename, sources); err != nil {
		logger.Info().AnErr("reason", err).Msg("Skipping ineligible object")
		rep.Skipped = append(rep.Skipped, Skip{Key: obj.Key, Reason: err})
		return
	}
	if lifecycle.IsPlaceholder(k.Filename, s.cfg.PlaceholderMarker) {
		logger.Info().AnErr("reason", lifecycle.ErrPlaceholder).Msg("Skipping placeholder")
		rep.Skipped = append(rep.Skipped, Skip{Key: obj.Key, Reason: lifecycle.ErrPlaceholder})
		return
	}

	dest := objectkey.Join(k.RootPrefix, lifecycle.StagePendingValidations, k.SourceID, k.Filename)
	if err := s.relocator.SetTag(ctx, s.cfg.Bucket, obj.Key, s.cfg.StatusTag, lifecycle.StagePendingValidations); err != nil {
		logger.Error().Err(err).Msg("Failed to tag object")
		rep.Failed = append(rep.Failed, Failure{Key: obj.Key, Err: err})
		return
	}

	desc := fmt.Sprintf("move s3://%s/%s -> %s", s.cfg.Bucket, obj.Key, dest)
	retries, err := s.cfg.Retry.Do(ctx, desc, func(ctx context.Context) error {
		return s.relocator.Move(ctx, s.cfg.Bucket, obj.Key, dest)
	})
	rep.Retries += retries
	if err != nil {
		logger.Error().Err(err).Str("destination", dest).Msg("Failed to promote object")
		rep.Failed = append(rep.Failed, Failure{Key: obj.Key, Err: err})
		return
	}

	logger.Info().Str("destination", dest).Int("retries", retries).Msg("Object promoted")
	rep.Promoted = append(rep.Promoted, dest)
	notify.Best(ctx, s.publisher, notify.Event{
		Type:     notify.ObjectPromoted,
		Bucket:   s.cfg.Bucket,
		Key:      dest,
		FromKey:  obj.Key,
		SourceID: k.SourceID,
		Stage:    lifecycle.StagePendingValidations,
	})
}
