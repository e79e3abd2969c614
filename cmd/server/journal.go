package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"swapkv/internal/config"
	"swapkv/internal/journal"
)

func newJournalCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the event journal",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump [path]",
		Short: "Print every intact journal record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				conf, err := config.Load(v)
				if err != nil {
					return err
				}
				path = conf.Journal.Path
			}
			if path == "" {
				return errors.New("no journal path given")
			}
			evs, err := journal.Load(path, zap.NewNop())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ev := range evs {
				fmt.Fprintf(out, "%d\t%s\t%s\tkey=%s\tparty=%s\toff=%d\tchunks=%d\n",
					ev.Sequence,
					ev.At.UTC().Format(time.RFC3339Nano),
					ev.Type,
					base64.URLEncoding.EncodeToString(ev.Key),
					base64.URLEncoding.EncodeToString(ev.Party),
					ev.Offset,
					ev.Chunks,
				)
			}
			return nil
		},
	})
	return cmd
}
