package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stackfold/stackfold/internal/cli"
	"github.com/stackfold/stackfold/pkg/profile/flamegraph/collapsed"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <file>...",
	Short: "Merge already-folded stack files into one",
	Long:  "Re-fold one or more collapsed-stacks files: identical stacks are merged with summed counts. With a single input this is an identity transform.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		app, err := cli.New(&cli.Config{LogLevel: logLevel})
		if err != nil {
			return err
		}
		defer app.Shutdown()

		profile := collapsed.NewProfile()
		for _, path := range args {
			if err := mergeFile(profile, path); err != nil {
				return err
			}
		}

		if err := writeProfile(profile); err != nil {
			return err
		}

		app.Logger().Info(app.Context(), "Merged profiles",
			zap.Int("inputs", len(args)),
			zap.String("stacks", humanize.Comma(int64(len(profile.Samples)))),
			zap.String("samples", humanize.Comma(profile.Total())),
		)
		return nil
	},
}

func mergeFile(profile *collapsed.Profile, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := profile.DecodeFrom(f); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
