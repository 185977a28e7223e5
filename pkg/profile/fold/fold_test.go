package fold_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackfold/stackfold/pkg/profile/dump"
	"github.com/stackfold/stackfold/pkg/profile/flamegraph/collapsed"
	"github.com/stackfold/stackfold/pkg/profile/fold"
	"github.com/stackfold/stackfold/pkg/xlog"
)

func fixture() *dump.Dump {
	d := dump.New(dump.LeafFirst)
	d.SetFrame(1, "Main.run")
	d.SetFrame(2, "Worker.process")
	d.SetTrace(10, []dump.FrameRef{{Frame: 2}, {Frame: 1}})
	return d
}

func foldToText(t *testing.T, d *dump.Dump, opts fold.Options) (string, fold.Stats) {
	t.Helper()
	profile, stats := fold.Fold(context.Background(), xlog.NewNop(), d, opts)
	raw, err := collapsed.Marshal(profile)
	require.NoError(t, err)
	return string(raw), stats
}

func TestLeafFirstResolution(t *testing.T) {
	d := fixture()
	d.AddSamples(10, 42)

	text, stats := foldToText(t, d, fold.Options{})
	require.Equal(t, "Main.run;Worker.process 42\n", text)
	require.Equal(t, int64(42), stats.Samples)
	require.Equal(t, 1, stats.Stacks)
}

func TestIdenticalStacksMerge(t *testing.T) {
	d := fixture()
	d.SetTrace(11, []dump.FrameRef{{Frame: 2}, {Frame: 1}})
	d.AddSamples(10, 5)
	d.AddSamples(11, 7)

	text, stats := foldToText(t, d, fold.Options{})
	require.Equal(t, "Main.run;Worker.process 12\n", text)
	require.Equal(t, int64(12), stats.Samples)
	require.Equal(t, 1, stats.Stacks)
}

func TestUnresolvableFrameGetsPlaceholder(t *testing.T) {
	d := fixture()
	d.SetTrace(12, []dump.FrameRef{{Frame: 99}, {Frame: 1}})
	d.AddSamples(12, 3)

	text, stats := foldToText(t, d, fold.Options{})
	require.Equal(t, "Main.run;unknown 3\n", text)
	require.Equal(t, 1, stats.UnknownFrames)
	require.Equal(t, int64(3), stats.Samples)
	require.Zero(t, stats.DroppedSamples)
}

func TestSkipUnresolvedTraces(t *testing.T) {
	d := fixture()
	d.SetTrace(12, []dump.FrameRef{{Frame: 99}, {Frame: 1}})
	d.AddSamples(10, 5)
	d.AddSamples(12, 3)

	text, stats := foldToText(t, d, fold.Options{SkipUnresolvedTraces: true})
	require.Equal(t, "Main.run;Worker.process 5\n", text)
	require.Equal(t, int64(5), stats.Samples)
	require.Equal(t, int64(3), stats.DroppedSamples)
	require.Equal(t, 1, stats.UnknownFrames)
}

func TestDanglingTraceReferenceIsDropped(t *testing.T) {
	d := fixture()
	d.AddSamples(10, 5)
	d.AddSamples(777, 9)

	text, stats := foldToText(t, d, fold.Options{})
	require.Equal(t, "Main.run;Worker.process 5\n", text)
	require.Equal(t, 1, stats.UnknownTraces)
	require.Equal(t, int64(9), stats.DroppedSamples)
	// Conservation: emitted plus dropped covers every extracted sample.
	require.Equal(t, int64(14), stats.Samples+stats.DroppedSamples)
}

func TestEmptyTraceFoldsToPlaceholder(t *testing.T) {
	d := fixture()
	d.SetTrace(13, nil)
	d.AddSamples(13, 2)

	text, stats := foldToText(t, d, fold.Options{})
	require.Equal(t, "unknown 2\n", text)
	require.Equal(t, 1, stats.EmptyTraces)
}

func TestZeroCountsAreOmitted(t *testing.T) {
	d := fixture()
	d.SetTrace(14, []dump.FrameRef{{Frame: 1}})
	d.AddSamples(10, 42)
	d.AddSamples(14, 0)

	text, stats := foldToText(t, d, fold.Options{})
	require.Equal(t, "Main.run;Worker.process 42\n", text)
	require.Equal(t, 1, stats.Stacks)
}

func TestLineNumbersAppended(t *testing.T) {
	d := dump.New(dump.LeafFirst)
	d.SetFrame(1, "Main.run")
	d.SetFrame(2, "Worker.process")
	d.SetTrace(10, []dump.FrameRef{{Frame: 2, Line: 37}, {Frame: 1}})
	d.AddSamples(10, 1)

	text, _ := foldToText(t, d, fold.Options{})
	require.Equal(t, "Main.run;Worker.process:37 1\n", text)
}

func TestRootFirstOrderIsPreserved(t *testing.T) {
	d := dump.New(dump.RootFirst)
	d.SetFrame(1, "Main.run")
	d.SetFrame(2, "Worker.process")
	d.SetTrace(10, []dump.FrameRef{{Frame: 1}, {Frame: 2}})
	d.AddSamples(10, 1)

	text, _ := foldToText(t, d, fold.Options{})
	require.Equal(t, "Main.run;Worker.process 1\n", text)
}

func TestDeterminism(t *testing.T) {
	build := func() *dump.Dump {
		d := fixture()
		d.SetTrace(11, []dump.FrameRef{{Frame: 1}})
		d.SetTrace(12, []dump.FrameRef{{Frame: 2}})
		d.AddSamples(12, 1)
		d.AddSamples(10, 2)
		d.AddSamples(11, 3)
		return d
	}

	first, _ := foldToText(t, build(), fold.Options{})
	second, _ := foldToText(t, build(), fold.Options{})
	require.Equal(t, first, second)

	// Folding is idempotent: re-folding the folded output reproduces it.
	profile, err := collapsed.Unmarshal([]byte(first))
	require.NoError(t, err)
	raw, err := collapsed.Marshal(profile)
	require.NoError(t, err)
	require.Equal(t, first, string(raw))
}
