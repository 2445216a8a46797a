// Package main provides the Lambda entry point of the record validator.
//
// Invoked as a batch job (schedule or manual invoke) with the sources to
// validate. Each source's settled PendingValidations objects are split into a
// snappy parquet partition under Validated and a JSON lines partition under
// Rejected, both registered in the catalog when one is configured.
//
// Input:  {"sources": ["Jenji"]}  (empty: every id in the source registry)
// Output: one result per source
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/datalake-ingestion/internal/config"
	"github.com/fpang/datalake-ingestion/internal/lambdaboot"
	"github.com/fpang/datalake-ingestion/internal/logging"
	"github.com/fpang/datalake-ingestion/internal/metrics"
	"github.com/fpang/datalake-ingestion/internal/validation"
)

var coldStart = true

var (
	cfg      *config.Config
	pipeline lambdaboot.Pipeline
)

// Request is the invocation payload.
type Request struct {
	Sources []string `json:"sources"`
}

// SourceResult is the outcome for one source.
type SourceResult struct {
	SourceID    string   `json:"sourceId"`
	Inputs      int      `json:"inputs"`
	Undecodable []string `json:"undecodable,omitempty"`
	Valid       int      `json:"valid"`
	Rejected    int      `json:"rejected"`
	ValidKey    string   `json:"validKey,omitempty"`
	RejectedKey string   `json:"rejectedKey,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func init() {
	initStart := time.Now()
	logging.Init()

	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := cfg.RequireBucket(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	clients := lambdaboot.InitAWS(cfg.S3Endpoint)
	pipeline = lambdaboot.Wire(clients, cfg)

	lambdaboot.StartupLog("validator-lambda", initStart, clients.Identity, cfg).
		Config("workers", fmt.Sprint(cfg.ValidationWorkers)).
		Config("catalogDatabase", cfg.CatalogDatabase).
		Log()
}

func main() {
	lambda.Start(handle)
}

func handle(ctx context.Context, req Request) ([]SourceResult, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "validator-lambda").Msg("Cold start, first invocation")
	}

	sources := req.Sources
	if len(sources) == 0 {
		registered, err := pipeline.Registry.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		sources = registered.Tokens()
		log.Info().Strs("sources", sources).Msg("No sources requested, validating every registered source")
	}

	var results []SourceResult
	var errs []error
	for _, src := range sources {
		res, err := validate(ctx, src)
		if err != nil {
			log.Error().Err(err).Str("sourceId", src).Msg("Validation failed")
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func validate(ctx context.Context, sourceID string) (SourceResult, error) {
	rec := metrics.New(cfg.MetricsNamespace).
		Dimension("Component", "validator").
		Dimension("SourceId", sourceID)
	defer rec.Flush()

	job := validation.NewJob(pipeline.Store, cfg.JobConfig(sourceID),
		validation.WithCatalog(pipeline.Catalog),
		validation.WithPublisher(pipeline.Publisher),
	)
	res, err := job.Run(ctx)
	res.Record(rec)

	out := SourceResult{
		SourceID:    sourceID,
		Inputs:      len(res.Inputs),
		Undecodable: res.Undecodable,
		Valid:       res.Valid,
		Rejected:    res.Rejected,
		ValidKey:    res.ValidKey,
		RejectedKey: res.RejectedKey,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out, err
}
