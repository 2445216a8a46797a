// Command datalake runs the ingestion pipeline components from a terminal,
// against the same bucket, registry and configuration as the Lambdas.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fpang/datalake-ingestion/internal/config"
	"github.com/fpang/datalake-ingestion/internal/lambdaboot"
	"github.com/fpang/datalake-ingestion/internal/logging"
	"github.com/fpang/datalake-ingestion/internal/registry"
)

// PipelineFactory builds the pipeline collaborators for a command.
type PipelineFactory func(ctx context.Context, cfg *config.Config) (lambdaboot.Pipeline, error)

// awsPipeline wires the pipeline against AWS.
func awsPipeline(ctx context.Context, cfg *config.Config) (lambdaboot.Pipeline, error) {
	clients, err := lambdaboot.LoadAWS(ctx, cfg.S3Endpoint)
	if err != nil {
		return lambdaboot.Pipeline{}, err
	}
	return lambdaboot.Wire(clients, cfg), nil
}

// app holds the state shared by every subcommand.
type app struct {
	v          *viper.Viper
	newPipe    PipelineFactory
	sources    string
	jsonOutput bool
}

func (a *app) config() (*config.Config, error) {
	return config.FromViper(a.v)
}

// pipeline loads the configuration and builds the collaborators for commands
// that touch the lake bucket.
func (a *app) pipeline(ctx context.Context) (*config.Config, lambdaboot.Pipeline, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, lambdaboot.Pipeline{}, err
	}
	if err := cfg.RequireBucket(); err != nil {
		return nil, lambdaboot.Pipeline{}, err
	}
	return a.wire(ctx, cfg)
}

// wire builds the collaborators. A --sources override replaces the SSM
// registry.
func (a *app) wire(ctx context.Context, cfg *config.Config) (*config.Config, lambdaboot.Pipeline, error) {
	p, err := a.newPipe(ctx, cfg)
	if err != nil {
		return nil, lambdaboot.Pipeline{}, err
	}
	if a.sources != "" {
		p.Registry = &registry.Static{Sources: registry.Sources{Raw: a.sources, Mode: cfg.SourceMatch}}
	}
	return cfg, p, nil
}

// print writes v as indented JSON with --json, or as text through textFn.
func (a *app) print(w io.Writer, v interface{}, textFn func(io.Writer)) error {
	if a.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	textFn(w)
	return nil
}

func newRootCmd(newPipe PipelineFactory) *cobra.Command {
	a := &app{v: config.New(), newPipe: newPipe}

	root := &cobra.Command{
		Use:   "datalake",
		Short: "Operate the data lake ingestion pipeline",
		Long: `datalake runs the ingestion pipeline steps on demand.

Configuration comes from DATALAKE_* environment variables or a .env file in
the working directory; flags override both.

Examples:
  datalake parse-key DataLakeV1/ArrivalHub/Delivered/Jenji/tx.json
  datalake gatekeep --key DataLakeV1/ArrivalHub/Delivered/Jenji/tx.json
  datalake sweep --min-age 2m
  datalake validate --source Jenji
  datalake list --prefix DataLakeV1/ArrivalHub/PendingSelection/ --min-age 5m
  datalake partitions --table transactions`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("bucket", "", "Lake bucket (DATALAKE_BUCKET)")
	flags.String("root-prefix", config.DefaultRootPrefix, "Root prefix of the arrival hub (DATALAKE_ROOT_PREFIX)")
	flags.String("endpoint", "", "S3-compatible endpoint, path-style (DATALAKE_S3_ENDPOINT)")
	flags.StringVar(&a.sources, "sources", "", "Use this source id list instead of the SSM registry")
	flags.BoolVar(&a.jsonOutput, "json", false, "Print results as JSON")
	_ = a.v.BindPFlag(config.KeyBucket, flags.Lookup("bucket"))
	_ = a.v.BindPFlag(config.KeyRootPrefix, flags.Lookup("root-prefix"))
	_ = a.v.BindPFlag(config.KeyS3Endpoint, flags.Lookup("endpoint"))

	root.AddCommand(
		newParseKeyCmd(a),
		newGatekeepCmd(a),
		newSweepCmd(a),
		newValidateCmd(a),
		newListCmd(a),
		newPartitionsCmd(a),
	)
	return root
}

func main() {
	config.LoadDotEnv()
	logging.InitConsole()
	if err := newRootCmd(awsPipeline).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
