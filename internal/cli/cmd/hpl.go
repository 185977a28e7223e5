package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/stackfold/stackfold/pkg/profile/dump"
	"github.com/stackfold/stackfold/pkg/profile/parse/hpl"
	"github.com/stackfold/stackfold/pkg/xlog"
)

var hplCmd = &cobra.Command{
	Use:   "hpl <file>",
	Short: "Convert an honest-profiler binary log",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runConvert(args[0], func(ctx context.Context, l xlog.Logger, r io.Reader) (*dump.Dump, error) {
			return hpl.Parse(ctx, l, r, hpl.Options{
				DiscardLineNo:   discardLineNo,
				DiscardThread:   discardThread,
				ShortenPackages: shortenPkgs,
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(hplCmd)
}
