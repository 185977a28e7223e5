package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/stackfold/stackfold/internal/cli"
	"github.com/stackfold/stackfold/pkg/profile/dump"
	"github.com/stackfold/stackfold/pkg/profile/flamegraph/collapsed"
	"github.com/stackfold/stackfold/pkg/profile/fold"
	"github.com/stackfold/stackfold/pkg/xlog"
)

type parseFunc func(ctx context.Context, l xlog.Logger, r io.Reader) (*dump.Dump, error)

// runConvert is the shared parse -> fold -> emit pipeline behind the
// per-format commands.
func runConvert(inputPath string, parse parseFunc) error {
	app, err := cli.New(&cli.Config{LogLevel: logLevel})
	if err != nil {
		return err
	}
	defer app.Shutdown()

	ctx := app.Context()
	l := app.Logger()

	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := parse(ctx, l.WithName("parse"), f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", inputPath, err)
	}
	l.Debug(ctx, "Parsed dump",
		zap.Int("frames", d.NumFrames()),
		zap.Int("traces", d.NumTraces()),
	)

	profile, stats := fold.Fold(ctx, l.WithName("fold"), d, fold.Options{
		SkipUnresolvedTraces: skipMissingFrames,
	})

	if err := writeProfile(profile); err != nil {
		return err
	}

	l.Info(ctx, "Folded profile",
		zap.String("stacks", humanize.Comma(int64(stats.Stacks))),
		zap.String("samples", humanize.Comma(stats.Samples)),
		zap.Int64("dropped_samples", stats.DroppedSamples),
		zap.Int("unknown_traces", stats.UnknownTraces),
		zap.Int("unknown_frames", stats.UnknownFrames),
	)
	return nil
}

func writeProfile(profile *collapsed.Profile) error {
	var out io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	if err := collapsed.Encode(profile, w); err != nil {
		return err
	}
	return w.Flush()
}
