package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/bynight/pkg/kafka"
)

func newImportCommand() *cobra.Command {
	var (
		source  string
		file    string
		publish bool
		noLock  bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import one payload file for a source and print the batch summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			payload, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.connectDatabase(ctx); err != nil {
				return err
			}
			if a.cfg.RedisEnabled && !noLock {
				if err := a.connectRedis(ctx); err != nil {
					return err
				}
			}
			if err := a.loadCatalog(ctx); err != nil {
				return err
			}
			if err := a.buildImporter(publish); err != nil {
				return err
			}

			records, err := a.decoder().Decode(ctx, &kafka.IncomingMessage{
				Value:   payload,
				Headers: map[string]string{kafka.SourceHeader: source},
			})
			if err != nil {
				return err
			}

			result, err := a.importer.HandleBatch(ctx, source, records)
			if err != nil {
				return err
			}
			a.monitor.Report(ctx)

			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			return out.Encode(result)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source name, as declared in the sources file")
	cmd.Flags().StringVar(&file, "file", "", "payload file (JSON)")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish outcomes to Kafka")
	cmd.Flags().BoolVar(&noLock, "no-lock", false, "skip the per-source Redis lock")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
