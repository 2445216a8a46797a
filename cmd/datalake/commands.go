package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/datalake-ingestion/internal/catalog"
	"github.com/fpang/datalake-ingestion/internal/config"
	"github.com/fpang/datalake-ingestion/internal/gatekeeper"
	"github.com/fpang/datalake-ingestion/internal/objectkey"
	"github.com/fpang/datalake-ingestion/internal/objectstore"
	"github.com/fpang/datalake-ingestion/internal/sweeper"
	"github.com/fpang/datalake-ingestion/internal/validation"
)

func newParseKeyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse-key <key>",
		Short: "Split an object key into root prefix, stage, source id and filename",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := objectkey.Parse(args[0])
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), k, func(w io.Writer) {
				fmt.Fprintf(w, "rootPrefix: %s\n", k.RootPrefix)
				fmt.Fprintf(w, "stage:      %s\n", k.Stage)
				fmt.Fprintf(w, "sourceId:   %s\n", k.SourceID)
				fmt.Fprintf(w, "filename:   %s\n", k.Filename)
			})
		},
	}
}

func newGatekeepCmd(a *app) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "gatekeep",
		Short: "Admit or quarantine one delivered object",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			gk := gatekeeper.New(p.Store, p.Registry, cfg.GatekeeperConfig(), gatekeeper.WithPublisher(p.Publisher))
			out, err := gk.Process(ctx, cfg.Bucket, key)

			// Quarantine is a normal outcome for the operator.
			var rejected *gatekeeper.RejectedError
			if err != nil && !errors.As(err, &rejected) {
				return err
			}
			return a.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				verb := "staged"
				if rejected != nil {
					verb = "rejected (" + rejected.Err.Error() + ")"
				}
				if !out.Relocated {
					verb += ", placeholder left in place"
				}
				fmt.Fprintf(w, "%s: %s -> %s [retries=%d]\n", verb, out.Key, out.Destination, out.Retries)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Delivered object key")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newSweepCmd(a *app) *cobra.Command {
	var minAge time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Promote settled PendingSelection objects to PendingValidations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			sc := cfg.SweeperConfig()
			if minAge > 0 {
				sc.MinAge = minAge
			}
			rep, err := sweeper.New(p.Store, p.Registry, sc, sweeper.WithPublisher(p.Publisher)).Run(ctx)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), rep.Summary(), func(w io.Writer) {
				for _, key := range rep.Promoted {
					fmt.Fprintf(w, "promoted %s\n", key)
				}
				for _, s := range rep.Skipped {
					fmt.Fprintf(w, "skipped  %s: %v\n", s.Key, s.Reason)
				}
				for _, f := range rep.Failed {
					fmt.Fprintf(w, "failed   %s: %v\n", f.Key, f.Err)
				}
				fmt.Fprintf(w, "listed=%d promoted=%d skipped=%d failed=%d\n",
					rep.Listed, len(rep.Promoted), len(rep.Skipped), len(rep.Failed))
			})
		},
	}
	cmd.Flags().DurationVar(&minAge, "min-age", 0, "Minimum object age (default DATALAKE_SWEEP_MIN_AGE)")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the PendingValidations objects of one source",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			job := validation.NewJob(p.Store, cfg.JobConfig(source),
				validation.WithCatalog(p.Catalog),
				validation.WithPublisher(p.Publisher),
			)
			res, err := job.Run(ctx)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), res, func(w io.Writer) {
				fmt.Fprintf(w, "inputs=%d records=%d valid=%d rejected=%d undecodable=%d skipped=%d\n",
					len(res.Inputs), res.Records, res.Valid, res.Rejected, len(res.Undecodable), res.Skipped)
				if res.ValidKey != "" {
					fmt.Fprintf(w, "valid:    %s\n", res.ValidKey)
				}
				if res.RejectedKey != "" {
					fmt.Fprintf(w, "rejected: %s\n", res.RejectedKey)
				}
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source id to validate")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var prefix string
	var minAge time.Duration
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List objects under a prefix that are older than --min-age",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			objects := objectstore.ListOlderThan(ctx, p.Store, cfg.Bucket, prefix, time.Now().UTC(), minAge)
			return a.print(cmd.OutOrStdout(), objects, func(w io.Writer) {
				for _, o := range objects {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", o.Key, o.LastModifiedISO(), o.Size, o.StorageClass)
				}
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix")
	cmd.Flags().DurationVar(&minAge, "min-age", objectstore.DefaultSettleAge, "Minimum object age")
	return cmd
}

func newPartitionsCmd(a *app) *cobra.Command {
	var database, table string
	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "List the partitions registered in the catalog for a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.config()
			if err != nil {
				return err
			}
			_, p, err := a.wire(ctx, cfg)
			if err != nil {
				return err
			}
			reader, ok := p.Catalog.(catalog.Reader)
			if !ok {
				return fmt.Errorf("no catalog to read: set %s", config.KeyCatalogTable)
			}
			if database == "" {
				database = cfg.CatalogDatabase
			}
			parts, err := reader.Partitions(ctx, database, table)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), parts, func(w io.Writer) {
				for _, part := range parts {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", part.Location, part.Records, part.Format, part.WrittenAt.Format(time.RFC3339))
				}
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Catalog table name")
	cmd.Flags().StringVar(&database, "database", "", "Catalog database (default DATALAKE_CATALOG_DATABASE)")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
