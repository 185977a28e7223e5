// Package fold resolves counted traces against the frame table and
// aggregates them into a collapsed flame-graph profile.
package fold

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/stackfold/stackfold/pkg/profile/dump"
	"github.com/stackfold/stackfold/pkg/profile/flamegraph/collapsed"
	"github.com/stackfold/stackfold/pkg/xlog"
)

// UnknownFrameLabel substitutes an unresolvable frame id and stands in for
// empty traces, so that their samples stay visible in the flame graph.
const UnknownFrameLabel = "unknown"

type Options struct {
	// SkipUnresolvedTraces drops a trace's whole count when any of its
	// frame ids is missing from the frame table, instead of substituting
	// UnknownFrameLabel.
	SkipUnresolvedTraces bool
}

// Stats describes one folding run. Samples covers what was emitted,
// DroppedSamples what was tallied away; their sum equals the valid counts
// extracted from the input.
type Stats struct {
	Stacks         int
	Samples        int64
	DroppedSamples int64
	UnknownTraces  int
	UnknownFrames  int
	EmptyTraces    int
}

// Fold turns a parsed dump into a collapsed profile. Traces are processed in
// first-observation order of their counts; identical resolved stacks merge.
func Fold(ctx context.Context, l xlog.Logger, d *dump.Dump, opts Options) (*collapsed.Profile, Stats) {
	profile := collapsed.NewProfile()
	var stats Stats

	for _, count := range d.Counts() {
		if count.Value <= 0 {
			continue
		}

		refs, ok := d.Trace(count.Trace)
		if !ok {
			// A count row referencing a trace the dump never defined.
			// There is no stack to attribute the samples to.
			stats.UnknownTraces++
			stats.DroppedSamples += count.Value
			l.Warn(ctx, "Dropping count for undefined trace",
				zap.Int64("trace", int64(count.Trace)),
				zap.Int64("samples", count.Value),
			)
			continue
		}

		stack, unresolved := resolve(d, refs)
		if unresolved > 0 {
			stats.UnknownFrames += unresolved
			if opts.SkipUnresolvedTraces {
				stats.DroppedSamples += count.Value
				l.Warn(ctx, "Skipping trace with unresolved frames",
					zap.Int64("trace", int64(count.Trace)),
					zap.Int("frames", unresolved),
					zap.Int64("samples", count.Value),
				)
				continue
			}
			l.Debug(ctx, "Substituted placeholder for unresolved frames",
				zap.Int64("trace", int64(count.Trace)),
				zap.Int("frames", unresolved),
			)
		}

		if len(stack) == 0 {
			stats.EmptyTraces++
			stack = []string{UnknownFrameLabel}
		}

		if d.Order() == dump.LeafFirst {
			reverse(stack)
		}

		profile.Add(stack, count.Value)
		stats.Samples += count.Value
	}

	stats.Stacks = len(profile.Samples)
	return profile, stats
}

func resolve(d *dump.Dump, refs []dump.FrameRef) (stack []string, unresolved int) {
	stack = make([]string, 0, len(refs))
	for _, ref := range refs {
		label, ok := d.FrameLabel(ref.Frame)
		if !ok {
			label = UnknownFrameLabel
			unresolved++
		} else if ref.Line > 0 {
			label += ":" + strconv.Itoa(int(ref.Line))
		}
		stack = append(stack, label)
	}
	return stack, unresolved
}

func reverse(stack []string) {
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}
}
