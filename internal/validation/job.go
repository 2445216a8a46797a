package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/datalake-ingestion/internal/catalog"
	"github.com/fpang/datalake-ingestion/internal/lifecycle"
	"github.com/fpang/datalake-ingestion/internal/metrics"
	"github.com/fpang/datalake-ingestion/internal/notify"
	"github.com/fpang/datalake-ingestion/internal/objectkey"
	"github.com/fpang/datalake-ingestion/internal/objectstore"
)

// DefaultVersion is the output layout version under Validated/<source>/.
const DefaultVersion = "v1"

// JobConfig holds the settings of one validation run.
type JobConfig struct {
	Bucket     string
	RootPrefix string
	SourceID   string
	StatusTag  string
	// MinAge is the settle age of input objects; zero uses the lister default.
	MinAge  time.Duration
	Workers int
	Version string
	// CatalogDatabase and the table names identify the outputs in the catalog.
	CatalogDatabase string
	ValidTable      string
	RejectedTable   string
}

// Result describes one validation run.
type Result struct {
	Inputs      []string
	Undecodable []string
	Skipped     int
	Records     int
	Valid       int
	Rejected    int
	ValidKey    string
	RejectedKey string
	Duration    time.Duration
}

// Record adds the result counters to rec.
func (r Result) Record(rec *metrics.Recorder) {
	rec.Add("ObjectsRead", len(r.Inputs)).
		Add("ObjectsUndecodable", len(r.Undecodable)).
		Add("RecordsValid", r.Valid).
		Add("RecordsRejected", r.Rejected).
		Duration("ValidationMs", r.Duration)
}

// Job validates the PendingValidations objects of one source.
type Job struct {
	store     objectstore.Store
	relocator *objectstore.Relocator
	catalog   catalog.Catalog
	publisher notify.Publisher
	rules     []Rule
	valid     Encoder
	rejected  Encoder
	newID     func() string
	now       func() time.Time
	cfg       JobConfig
}

// JobOption customises a Job.
type JobOption func(*Job)

// WithCatalog registers written partitions in c.
func WithCatalog(c catalog.Catalog) JobOption {
	return func(j *Job) { j.catalog = c }
}

// WithPublisher publishes a PartitionWritten event per written partition.
func WithPublisher(p notify.Publisher) JobOption {
	return func(j *Job) { j.publisher = p }
}

// WithRules replaces the transaction rule set.
func WithRules(rules ...Rule) JobOption {
	return func(j *Job) { j.rules = rules }
}

// WithIDs overrides the id source of partition file names.
func WithIDs(newID func() string) JobOption {
	return func(j *Job) { j.newID = newID }
}

// WithClock overrides the clock used for the settle cutoff and catalog timestamps.
func WithClock(now func() time.Time) JobOption {
	return func(j *Job) { j.now = now }
}

// NewJob returns a Job writing valid records as parquet and rejected records as JSON lines.
func NewJob(store objectstore.Store, cfg JobConfig, opts ...JobOption) *Job {
	if cfg.StatusTag == "" {
		cfg.StatusTag = lifecycle.DefaultStatusTag
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.CatalogDatabase == "" {
		cfg.CatalogDatabase = catalog.DefaultDatabase
	}
	src := strings.ToLower(cfg.SourceID)
	if cfg.ValidTable == "" {
		cfg.ValidTable = fmt.Sprintf("tb_transaction_raw_valid_%s_%s", src, cfg.Version)
	}
	if cfg.RejectedTable == "" {
		cfg.RejectedTable = fmt.Sprintf("tb_transaction_raw_rejected_%s", src)
	}
	j := &Job{
		store:     store,
		relocator: objectstore.NewRelocator(store),
		catalog:   catalog.Nop{},
		publisher: notify.Nop{},
		rules:     TransactionRules(),
		valid:     ParquetWriter{},
		rejected:  JSONLinesWriter{},
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// InputPrefix returns the prefix the job reads from.
func (j *Job) InputPrefix() string {
	return objectkey.Join(j.cfg.RootPrefix, lifecycle.StagePendingValidations, j.cfg.SourceID) + "/"
}

// Run reads every settled input object not yet validated, routes its records
// and writes both partitions. Invalid records are data, not errors: Run fails
// only when reading the inputs or writing an output fails.
func (j *Job) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result
	logger := log.With().Str("bucket", j.cfg.Bucket).Str("sourceId", j.cfg.SourceID).Logger()

	objects := objectstore.ListOlderThan(ctx, j.store, j.cfg.Bucket, j.InputPrefix(), j.now(), j.cfg.MinAge)
	var records []Record
	for _, obj := range objects {
		status, _, err := j.relocator.GetTag(ctx, j.cfg.Bucket, obj.Key, j.cfg.StatusTag)
		if err != nil {
			return res, err
		}
		if status == lifecycle.StageValidated || status == lifecycle.StageRejected {
			res.Skipped++
			continue
		}

		body, err := j.store.Get(ctx, j.cfg.Bucket, obj.Key)
		if err != nil {
			return res, fmt.Errorf("read input: %w", err)
		}
		recs, err := decodeInput(body)
		if err != nil {
			logger.Warn().Err(err).Str("key", obj.Key).Msg("Undecodable input, tagging as rejected")
			if tagErr := j.relocator.SetTag(ctx, j.cfg.Bucket, obj.Key, j.cfg.StatusTag, lifecycle.StageRejected); tagErr != nil {
				logger.Error().Err(tagErr).Str("key", obj.Key).Msg("Failed to tag undecodable input")
			}
			res.Undecodable = append(res.Undecodable, obj.Key)
			continue
		}
		res.Inputs = append(res.Inputs, obj.Key)
		records = append(records, recs...)
	}
	res.Records = len(records)

	if len(res.Inputs) == 0 {
		res.Duration = time.Since(start)
		logger.Info().Int("skipped", res.Skipped).Int("undecodable", len(res.Undecodable)).Msg("Nothing to validate")
		return res, nil
	}

	parts, err := Route(ctx, records, AllOf(j.rules...), j.cfg.Workers)
	if err != nil {
		return res, err
	}
	res.Valid, res.Rejected = len(parts.Valid), len(parts.Rejected)
	for _, rec := range parts.Rejected {
		logger.Debug().Strs("violations", Violations(rec, j.rules...)).Msg("Record rejected")
	}

	if len(parts.Valid) > 0 {
		dir := objectkey.Join(j.cfg.RootPrefix, lifecycle.StageValidated, j.cfg.SourceID, j.cfg.Version)
		res.ValidKey, err = j.writePartition(ctx, lifecycle.StageValidated, dir, j.cfg.ValidTable, j.valid, parts.Valid)
		if err != nil {
			return res, err
		}
	}
	if len(parts.Rejected) > 0 {
		dir := objectkey.Join(j.cfg.RootPrefix, lifecycle.StageRejected, j.cfg.SourceID)
		res.RejectedKey, err = j.writePartition(ctx, lifecycle.StageRejected, dir, j.cfg.RejectedTable, j.rejected, parts.Rejected)
		if err != nil {
			return res, err
		}
	}

	for _, key := range res.Inputs {
		applied, err := j.relocator.SetTagIf(ctx, j.cfg.Bucket, key, j.cfg.StatusTag, lifecycle.StageValidated, lifecycle.StagePendingValidations)
		switch {
		case err != nil:
			logger.Error().Err(err).Str("key", key).Msg("Failed to mark input validated")
		case !applied:
			logger.Warn().Str("key", key).Msg("Input status changed during validation, tag left as is")
		}
	}

	res.Duration = time.Since(start)
	logger.Info().
		Int("inputs", len(res.Inputs)).
		Int("records", res.Records).
		Int("valid", res.Valid).
		Int("rejected", res.Rejected).
		Str("validKey", res.ValidKey).
		Str("rejectedKey", res.RejectedKey).
		Dur("duration", res.Duration).
		Msg("Validation complete")
	return res, nil
}

// writePartition encodes records, stores them under dir and registers the file.
func (j *Job) writePartition(ctx context.Context, stage, dir, table string, enc Encoder, records []Record) (string, error) {
	key := dir + "/part-" + j.newID() + enc.Extension()
	body, err := EncodeBytes(enc, records)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}
	if err := j.store.Put(ctx, j.cfg.Bucket, key, body, enc.ContentType()); err != nil {
		return "", fmt.Errorf("write partition: %w", err)
	}

	location := "s3://" + j.cfg.Bucket + "/" + key
	err = j.catalog.Register(ctx, catalog.Partition{
		Database:    j.cfg.CatalogDatabase,
		Table:       table,
		Location:    location,
		Format:      enc.Format(),
		Compression: enc.Compression(),
		SourceID:    j.cfg.SourceID,
		Records:     len(records),
		Bytes:       int64(len(body)),
		WrittenAt:   j.now(),
	})
	if err != nil {
		return "", fmt.Errorf("register %s: %w", location, err)
	}

	notify.Best(ctx, j.publisher, notify.Event{
		Type:     notify.PartitionWritten,
		Bucket:   j.cfg.Bucket,
		Key:      key,
		SourceID: j.cfg.SourceID,
		Stage:    stage,
		Records:  len(records),
	})
	return key, nil
}

func decodeInput(body []byte) ([]Record, error) {
	data, err := Inflate(body)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
