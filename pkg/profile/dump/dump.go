// Package dump holds the normalized in-memory form of a profiler dump:
// a frame table, a trace table and an ordered sample-count list. The two
// front-end parsers fill it, the folder consumes it.
package dump

// FrameID identifies one entry of the frame table. Negative identifiers are
// legal (the HPL agent reports errors through negative method ids).
type FrameID int64

// TraceID identifies one entry of the trace table.
type TraceID int64

// FrameRef is one stack position inside a trace: a frame-table reference
// plus an optional source line. Line <= 0 means unknown.
type FrameRef struct {
	Frame FrameID
	Line  int32
}

// Count is one sample-count entry of the dump.
type Count struct {
	Trace TraceID
	Value int64
}

// Order is the native frame ordering of traces in the source format.
type Order int

const (
	RootFirst Order = iota
	LeafFirst
)

type Dump struct {
	order Order

	frames  map[FrameID]string
	byLabel map[string]FrameID
	nextID  FrameID

	traces map[TraceID][]FrameRef

	counts   []Count
	countIdx map[TraceID]int
}

func New(order Order) *Dump {
	return &Dump{
		order:    order,
		frames:   make(map[FrameID]string),
		byLabel:  make(map[string]FrameID),
		traces:   make(map[TraceID][]FrameRef),
		countIdx: make(map[TraceID]int),
	}
}

func (d *Dump) Order() Order {
	return d.order
}

// SetFrame defines or redefines a frame label. Last definition wins.
func (d *Dump) SetFrame(id FrameID, label string) {
	d.frames[id] = label
}

// syntheticBase starts the id range handed out by InternFrame. It sits far
// below the negative ids the HPL agent reserves for error pseudo-methods, so
// interned frames never collide with explicit frame definitions.
const syntheticBase FrameID = -1 << 40

// InternFrame returns the frame id for a label, allocating one on first use.
// Used for formats that carry labels inline instead of a frame table, and
// for synthetic frames such as thread pseudo-frames.
func (d *Dump) InternFrame(label string) FrameID {
	if id, ok := d.byLabel[label]; ok {
		return id
	}
	d.nextID--
	id := syntheticBase + d.nextID
	d.byLabel[label] = id
	d.frames[id] = label
	return id
}

func (d *Dump) FrameLabel(id FrameID) (string, bool) {
	label, ok := d.frames[id]
	return label, ok
}

// SetTrace defines or redefines a trace. Last definition wins. An empty
// frame sequence is legal and stands for an idle/unknown stack.
func (d *Dump) SetTrace(id TraceID, frames []FrameRef) {
	d.traces[id] = frames
}

func (d *Dump) Trace(id TraceID) ([]FrameRef, bool) {
	frames, ok := d.traces[id]
	return frames, ok
}

// AddSamples accumulates n observed samples for a trace. The first
// observation of each trace fixes its position in Counts.
func (d *Dump) AddSamples(id TraceID, n int64) {
	if i, ok := d.countIdx[id]; ok {
		d.counts[i].Value += n
		return
	}
	d.countIdx[id] = len(d.counts)
	d.counts = append(d.counts, Count{Trace: id, Value: n})
}

// Counts returns the per-trace sample counts in first-observation order.
func (d *Dump) Counts() []Count {
	return d.counts
}

func (d *Dump) NumFrames() int {
	return len(d.frames)
}

func (d *Dump) NumTraces() int {
	return len(d.traces)
}
