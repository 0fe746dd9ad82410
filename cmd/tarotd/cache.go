package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/tarotcache/internal/config"
)

func newCacheCmd(load func() (config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the cache namespace",
	}

	flush := &cobra.Command{
		Use:   "flush [pattern]",
		Short: "Delete keys under the namespace matching pattern (default: all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log, done, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer done()
			rt, err := newCache(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			if err := rt.Store.Connect(cmd.Context()); err != nil {
				return err
			}

			var pattern string
			if len(args) == 1 {
				pattern = args[0]
			}
			n := rt.Store.Flush(cmd.Context(), pattern)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys\n", n)
			return rt.Store.LastError()
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log, done, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer done()
			rt, err := newCache(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			out, err := json.MarshalIndent(rt.Store.Stats(cmd.Context()), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.AddCommand(flush, stats)
	return cmd
}
