package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	var (
		collection string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed collection",
		Args:  cobra.MinimumNArgs(1),
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

			query := strings.Join(args, " ")
			results, err := d.searchSvc.Search(ctx, collection, query, limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No results.")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. %s:%d-%d (%.3f)\n", i+1, r.FilePath, r.StartLine, r.EndLine, r.Score)
				for _, line := range strings.Split(strings.TrimRight(r.Content, "\n"), "\n") {
					fmt.Printf("   %s\n", line)
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "workspace", "collection to search")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}
