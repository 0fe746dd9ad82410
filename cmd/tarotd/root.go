package main

import (
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/tarotcache/internal/config"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "tarotd",
		Short:         "Tarot divination backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")

	load := func() (config.Config, error) { return config.Load(cfgPath) }
	root.AddCommand(newServeCmd(load), newCacheCmd(load))
	return root
}
