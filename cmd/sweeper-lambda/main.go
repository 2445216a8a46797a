// Package main provides the Lambda entry point of the selection sweeper.
//
// Invoked on a schedule (EventBridge cron). Each run promotes every settled,
// still-eligible PendingSelection object to PendingValidations. Per-object
// failures are logged and counted; the invocation itself only fails when the
// source registry cannot be read.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/datalake-ingestion/internal/config"
	"github.com/fpang/datalake-ingestion/internal/lambdaboot"
	"github.com/fpang/datalake-ingestion/internal/logging"
	"github.com/fpang/datalake-ingestion/internal/metrics"
	"github.com/fpang/datalake-ingestion/internal/sweeper"
)

var coldStart = true

var (
	sw        *sweeper.Sweeper
	namespace string
)

func init() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := cfg.RequireBucket(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	clients := lambdaboot.InitAWS(cfg.S3Endpoint)
	p := lambdaboot.Wire(clients, cfg)

	sw = sweeper.New(p.Store, p.Registry, cfg.SweeperConfig(), sweeper.WithPublisher(p.Publisher))
	namespace = cfg.MetricsNamespace

	lambdaboot.StartupLog("sweeper-lambda", initStart, clients.Identity, cfg).
		Config("minAge", cfg.SweepMinAge.String()).
		Config("prefix", sw.Prefix()).
		Log()
}

func main() {
	lambda.Start(handle)
}

func handle(ctx context.Context, evt events.CloudWatchEvent) (sweeper.Summary, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "sweeper-lambda").Msg("Cold start, first invocation")
	}
	log.Debug().Str("rule", firstResource(evt)).Time("scheduled", evt.Time).Msg("Scheduled sweep")

	rec := metrics.New(namespace).Dimension("Component", "sweeper")
	defer rec.Flush()

	rep, err := sw.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Sweep aborted")
		rec.Count("SweepAborted")
		return sweeper.Summary{}, err
	}
	rep.Record(rec)
	if failed := rep.Err(); failed != nil {
		log.Warn().Err(failed).Msg("Some objects could not be promoted")
	}
	return rep.Summary(), nil
}

func firstResource(evt events.CloudWatchEvent) string {
	if len(evt.Resources) > 0 {
		return evt.Resources[0]
	}
	return ""
}
