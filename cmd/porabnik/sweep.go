package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/erazemk/porabnik/internal/logger"
	"github.com/erazemk/porabnik/internal/sweep"
)

func newSweepCommand(c *cli) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete image files that no item references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("grace") {
				grace = c.cfg.Sweep.Grace
			}

			log, err := logger.New(c.cfg.Log.Level, c.cfg.Log.File)
			if err != nil {
				return err
			}
			defer log.Sync()

			database, err := openDatabase(c.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			blobs, err := newBlobStore(c.cfg.Blob)
			if err != nil {
				return err
			}

			res, err := sweep.Run(cmd.Context(), database, blobs, grace, logger.Named(log, "sweep"))
			if res != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d files, deleted %d (%s), skipped %d recent\n",
					res.Scanned, len(res.Deleted), humanize.Bytes(uint64(res.Freed)), res.Recent)
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 0, "skip files younger than this (default from config)")
	return cmd
}
