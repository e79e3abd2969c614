package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"swapkv/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "swapkv",
		Short:         "swapkv pairs up two parties under a shared key and swaps their values",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), conf)
		},
	}
	config.AddFlags(cmd.PersistentFlags(), config.DefaultConfig())
	cobra.CheckErr(v.BindPFlags(cmd.PersistentFlags()))
	cmd.AddCommand(newJournalCmd(v))
	return cmd
}
