package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/stackfold/stackfold/pkg/profile/dump"
	"github.com/stackfold/stackfold/pkg/profile/parse/hprof"
	"github.com/stackfold/stackfold/pkg/xlog"
)

var hprofCmd = &cobra.Command{
	Use:   "hprof <file>",
	Short: "Convert a java -agentlib:hprof=cpu=samples text dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runConvert(args[0], func(ctx context.Context, l xlog.Logger, r io.Reader) (*dump.Dump, error) {
			return hprof.Parse(ctx, l, r, hprof.Options{
				DiscardLineNo:   discardLineNo,
				DiscardThread:   discardThread,
				ShortenPackages: shortenPkgs,
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(hprofCmd)
}
