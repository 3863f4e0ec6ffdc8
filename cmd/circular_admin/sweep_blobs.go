package main

import (
	"time"

	"github.com/edufleetexchange-art/Circularnest/circulars/registry"
	"github.com/spf13/cobra"
)

func newSweepBlobsCmd(opts *rootOptions) *cobra.Command {
	var (
		remove bool
		minAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sweep-blobs",
		Short: "Find stored files that no submission or circular references",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openDb()
			if err != nil {
				return err
			}
			store, err := opts.openStore(cmd.Context(), db)
			if err != nil {
				return err
			}

			result, err := registry.New(db, store).SweepOrphanBlobs(cmd.Context(), minAge, remove)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd, result)
			}

			mode := "dry run"
			if remove {
				mode = "applied"
			}
			if err := writePlain(cmd, "%s: scanned=%d orphans=%d deleted=%d\n", mode, result.Scanned, len(result.Orphans), result.Deleted); err != nil {
				return err
			}
			for _, id := range result.Orphans {
				if err := writePlain(cmd, "  %s\n", id); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "delete", false, "delete the orphaned files instead of only listing them")
	cmd.Flags().DurationVar(&minAge, "min-age", time.Hour, "only consider files stored at least this long ago")
	return cmd
}
