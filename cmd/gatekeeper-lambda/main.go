// Package main provides the Lambda entry point of the ingestion gatekeeper.
//
// Triggered by S3 ObjectCreated events on the lake bucket. Every object
// landing under a Delivered folder is checked against the source registry and
// moved to PendingSelection, or quarantined under Rejected. The invocation
// fails when any record of the event was rejected or could not be moved, so
// the failure is visible in the trigger's error metrics and DLQ.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/datalake-ingestion/internal/config"
	"github.com/fpang/datalake-ingestion/internal/gatekeeper"
	"github.com/fpang/datalake-ingestion/internal/lambdaboot"
	"github.com/fpang/datalake-ingestion/internal/logging"
)

var coldStart = true

var handler *gatekeeper.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	clients := lambdaboot.InitAWS(cfg.S3Endpoint)
	p := lambdaboot.Wire(clients, cfg)

	handler = &gatekeeper.Handler{
		Gatekeeper:      gatekeeper.New(p.Store, p.Registry, cfg.GatekeeperConfig(), gatekeeper.WithPublisher(p.Publisher)),
		DeliveredMarker: cfg.DeliveredMarker,
		Namespace:       cfg.MetricsNamespace,
	}

	lambdaboot.StartupLog("gatekeeper-lambda", initStart, clients.Identity, cfg).
		Config("deliveredMarker", cfg.DeliveredMarker).
		Config("placeholderMarker", cfg.PlaceholderMarker).
		Log()
}

func main() {
	lambda.Start(handle)
}

func handle(ctx context.Context, evt events.S3Event) ([]string, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "gatekeeper-lambda").Msg("Cold start, first invocation")
	}
	log.Debug().Int("records", len(evt.Records)).Msg("S3 event received")
	return handler.Handle(ctx, evt)
}
