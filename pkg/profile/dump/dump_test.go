package dump_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackfold/stackfold/pkg/profile/dump"
)

func TestInternFrame(t *testing.T) {
	d := dump.New(dump.LeafFirst)

	a := d.InternFrame("Main.run")
	b := d.InternFrame("Worker.process")
	require.NotEqual(t, a, b)
	require.Equal(t, a, d.InternFrame("Main.run"))
	require.Equal(t, 2, d.NumFrames())

	label, ok := d.FrameLabel(a)
	require.True(t, ok)
	require.Equal(t, "Main.run", label)
}

func TestInternedFramesDoNotCollideWithExplicitIDs(t *testing.T) {
	d := dump.New(dump.LeafFirst)

	// HPL error pseudo-methods live at small negative ids.
	d.SetFrame(-1, "Error.No Java Frames[ERR=0]")
	id := d.InternFrame("Thread 7")

	label, ok := d.FrameLabel(-1)
	require.True(t, ok)
	require.Equal(t, "Error.No Java Frames[ERR=0]", label)
	require.NotEqual(t, dump.FrameID(-1), id)
}

func TestLastDefinitionWins(t *testing.T) {
	d := dump.New(dump.LeafFirst)

	d.SetFrame(1, "Old.label")
	d.SetFrame(1, "New.label")
	label, _ := d.FrameLabel(1)
	require.Equal(t, "New.label", label)

	d.SetTrace(10, []dump.FrameRef{{Frame: 1}})
	d.SetTrace(10, []dump.FrameRef{{Frame: 1}, {Frame: 1}})
	frames, ok := d.Trace(10)
	require.True(t, ok)
	require.Len(t, frames, 2)
}

func TestCountAccumulation(t *testing.T) {
	d := dump.New(dump.LeafFirst)

	d.AddSamples(10, 5)
	d.AddSamples(11, 1)
	d.AddSamples(10, 7)

	require.Equal(t, []dump.Count{
		{Trace: 10, Value: 12},
		{Trace: 11, Value: 1},
	}, d.Counts())
}
