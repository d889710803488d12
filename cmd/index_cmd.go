package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func indexCmd() *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Index a directory into a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging)

			ctx := cmd.Context()
			d, cleanup, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			op, err := d.indexSvc.Run(ctx, args[0], collection)
			if err != nil {
				return fmt.Errorf("indexing %s: %w", args[0], err)
			}

			fmt.Printf("Indexed %s into %q\n", args[0], collection)
			fmt.Printf("  Files:   %d processed, %d skipped (unchanged)\n", op.ProcessedFiles, op.SkippedFiles)
			fmt.Printf("  Chunks:  %d\n", op.ChunksCreated)
			if len(op.FailedFiles) > 0 {
				fmt.Printf("  Failed:  %d\n", len(op.FailedFiles))
				for _, f := range op.FailedFiles {
					fmt.Printf("    %s\n", f)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "workspace", "target collection")
	return cmd
}
