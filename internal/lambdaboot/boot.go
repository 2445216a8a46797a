// Package lambdaboot provides the shared cold-start bootstrap of the pipeline
// functions and the CLI.
//
// Every entry point needs the same things: AWS config, the S3 store, the SSM
// source registry, the optional catalog and event bus, and a startup log.
// Region and function identity are resolved once here and passed down
// explicitly.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/datalake-ingestion/internal/catalog"
	"github.com/fpang/datalake-ingestion/internal/config"
	"github.com/fpang/datalake-ingestion/internal/logging"
	"github.com/fpang/datalake-ingestion/internal/notify"
	"github.com/fpang/datalake-ingestion/internal/objectstore"
	"github.com/fpang/datalake-ingestion/internal/registry"
)

// Identity is the resolved execution identity of the process.
type Identity struct {
	Region       string
	FunctionName string
}

// ResolveRegion returns AWS_REGION, then AWS_DEFAULT_REGION, then fallback.
func ResolveRegion(fallback string) string {
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return fallback
}

// ResolveFunctionName returns AWS_LAMBDA_FUNCTION_NAME, or the binary name
// outside Lambda.
func ResolveFunctionName() string {
	if n := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); n != "" {
		return n
	}
	return filepath.Base(os.Args[0])
}

// AWSClients holds the AWS config and the clients used across functions.
type AWSClients struct {
	Config   aws.Config
	Identity Identity
	S3       *s3.Client
	SSM      *ssm.Client
}

// LoadAWS loads the default AWS config and creates the S3 and SSM clients.
// s3Endpoint, when set, points S3 at a compatible endpoint using path-style
// addressing.
func LoadAWS(ctx context.Context, s3Endpoint string) (AWSClients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return AWSClients{}, fmt.Errorf("load AWS config: %w", err)
	}
	id := Identity{Region: ResolveRegion(cfg.Region), FunctionName: ResolveFunctionName()}
	cfg.Region = id.Region
	log.Debug().Str("region", id.Region).Str("function", id.FunctionName).Msg("AWS config loaded")
	return AWSClients{
		Config:   cfg,
		Identity: id,
		S3:       NewS3Client(cfg, s3Endpoint),
		SSM:      ssm.NewFromConfig(cfg),
	}, nil
}

// InitAWS is LoadAWS for init(): it fatals on error.
func InitAWS(s3Endpoint string) AWSClients {
	clients, err := LoadAWS(context.Background(), s3Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	return clients
}

// NewS3Client creates an S3 client, optionally against a custom endpoint.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// Pipeline holds the collaborators shared by the gatekeeper, sweeper and validator.
type Pipeline struct {
	Store     objectstore.Store
	Registry  registry.Registry
	Catalog   catalog.Catalog
	Publisher notify.Publisher
}

// Wire builds the pipeline collaborators from clients and cfg. The catalog
// and publisher are no-ops when their table or bus is not configured.
func Wire(clients AWSClients, cfg *config.Config) Pipeline {
	p := Pipeline{
		Store:     objectstore.NewS3Store(clients.S3),
		Registry:  registry.NewSSMRegistry(clients.SSM, cfg.SourceParam, cfg.SourceMatch),
		Catalog:   catalog.Nop{},
		Publisher: notify.Nop{},
	}
	if cfg.CatalogTable != "" {
		p.Catalog = catalog.NewDynamoCatalog(dynamodb.NewFromConfig(clients.Config), cfg.CatalogTable)
	} else {
		log.Warn().Str("envVar", config.KeyCatalogTable).Msg("Catalog table not set, partitions will not be registered")
	}
	if cfg.EventBus != "" {
		p.Publisher = notify.NewEventBridgePublisher(eventbridge.NewFromConfig(clients.Config), cfg.EventBus)
	}
	return p
}

// StartupLog returns a startup logger pre-filled with identity, resources and
// configuration.
func StartupLog(name string, initStart time.Time, id Identity, cfg *config.Config) *logging.StartupLogger {
	sl := logging.NewStartupLogger(name).
		Identity(id.FunctionName, id.Region).
		SSMParam("sources", cfg.SourceParam).
		Feature("catalog", cfg.CatalogTable != "").
		Feature("notifications", cfg.EventBus != "").
		Feature("customS3Endpoint", cfg.S3Endpoint != "").
		Config("rootPrefix", cfg.RootPrefix).
		Config("statusTag", cfg.StatusTag).
		Config("sourceMatch", string(cfg.SourceMatch)).
		Config("retry", fmt.Sprintf("%dx%s", cfg.RetryAttempts, cfg.RetryDelay)).
		InitDuration(time.Since(initStart))
	if cfg.Bucket != "" {
		sl.S3Bucket("lake", cfg.Bucket)
	}
	if cfg.CatalogTable != "" {
		sl.DynamoTable("catalog", cfg.CatalogTable)
	}
	if cfg.EventBus != "" {
		sl.EventBus("lifecycle", cfg.EventBus)
	}
	return sl
}
