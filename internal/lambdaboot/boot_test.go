package lambdaboot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/fpang/datalake-ingestion/internal/catalog"
	"github.com/fpang/datalake-ingestion/internal/config"
	"github.com/fpang/datalake-ingestion/internal/notify"
	"github.com/fpang/datalake-ingestion/internal/registry"
)

func TestResolveRegion(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	if got := ResolveRegion("us-east-1"); got != "us-east-1" {
		t.Errorf("fallback: got %s", got)
	}
	t.Setenv("AWS_DEFAULT_REGION", "eu-central-1")
	if got := ResolveRegion("us-east-1"); got != "eu-central-1" {
		t.Errorf("AWS_DEFAULT_REGION: got %s", got)
	}
	t.Setenv("AWS_REGION", "eu-west-1")
	if got := ResolveRegion("us-east-1"); got != "eu-west-1" {
		t.Errorf("AWS_REGION: got %s", got)
	}
}

func TestResolveFunctionName(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	if got := ResolveFunctionName(); got != filepath.Base(os.Args[0]) {
		t.Errorf("binary fallback: got %s", got)
	}
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "datalake-sweeper")
	if got := ResolveFunctionName(); got != "datalake-sweeper" {
		t.Errorf("got %s", got)
	}
}

func TestNewS3Client_Endpoint(t *testing.T) {
	cfg := aws.Config{Region: "us-east-1"}

	opts := NewS3Client(cfg, "http://localhost:9000").Options()
	if aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" || !opts.UsePathStyle {
		t.Errorf("custom endpoint not applied: %v %v", aws.ToString(opts.BaseEndpoint), opts.UsePathStyle)
	}

	opts = NewS3Client(cfg, "").Options()
	if opts.BaseEndpoint != nil || opts.UsePathStyle {
		t.Error("default client must use virtual-hosted AWS endpoints")
	}
}

func TestWire(t *testing.T) {
	clients := AWSClients{Config: aws.Config{Region: "us-east-1"}}
	clients.S3 = NewS3Client(clients.Config, "")

	p := Wire(clients, &config.Config{Bucket: "lake", SourceParam: "/p", SourceMatch: registry.MatchToken})
	if _, ok := p.Catalog.(catalog.Nop); !ok {
		t.Errorf("expected Nop catalog, got %T", p.Catalog)
	}
	if _, ok := p.Publisher.(notify.Nop); !ok {
		t.Errorf("expected Nop publisher, got %T", p.Publisher)
	}
	if r, ok := p.Registry.(*registry.SSMRegistry); !ok || r.Parameter() != "/p" {
		t.Errorf("unexpected registry %T", p.Registry)
	}

	p = Wire(clients, &config.Config{Bucket: "lake", CatalogTable: "catalog", EventBus: "bus"})
	if _, ok := p.Catalog.(*catalog.DynamoCatalog); !ok {
		t.Errorf("expected DynamoCatalog, got %T", p.Catalog)
	}
	if _, ok := p.Publisher.(*notify.EventBridgePublisher); !ok {
		t.Errorf("expected EventBridgePublisher, got %T", p.Publisher)
	}
}

func TestStartupLog(t *testing.T) {
	sl := StartupLog("sweeper-lambda", time.Now(), Identity{Region: "eu-west-1", FunctionName: "fn"}, &config.Config{Bucket: "lake", EventBus: "bus"})
	if sl == nil {
		t.Fatal("nil startup logger")
	}
}
