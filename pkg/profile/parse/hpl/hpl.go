// Package hpl parses honest-profiler binary logs.
//
// The log is a big-endian stream of marker-tagged records: method
// definitions (the frame table), trace starts and frames. Every trace
// record is one observed sample, so counts are accumulated per record
// rather than read from a table. Frames inside a trace are recorded
// leaf-first. Method definitions may arrive after the traces that
// reference them, so resolution is deferred to the folder.
//
// Profiler shutdown regularly truncates the log mid-record. A short read or
// an unknown marker therefore ends parsing with everything decoded so far;
// only I/O errors are fatal.
package hpl

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/stackfold/stackfold/pkg/profile/dump"
	"github.com/stackfold/stackfold/pkg/profile/symbol"
	"github.com/stackfold/stackfold/pkg/xlog"
)

const (
	markerEnd       = 0
	markerTrace     = 1
	markerFrame     = 2
	markerMethod    = 3
	markerFullFrame = 21

	// Strings in method records are short identifiers; anything bigger
	// means the stream is corrupt.
	maxStringLen = 1 << 20
)

// agentErrors lists the pseudo-methods the profiling agent reports through
// negative frame counts: code n maps to method id n-1, so index i holds
// method id -1-i.
var agentErrors = []string{
	"No Java Frames[ERR=0]",
	"No class load[ERR=-1]",
	"GC Active[ERR=-2]",
	"Unknown not Java[ERR=-3]",
	"Not walkable not Java[ERR=-4]",
	"Unknown Java[ERR=-5]",
	"Not walkable Java[ERR=-6]",
	"Unknown state[ERR=-7]",
	"Thread exit[ERR=-8]",
	"Deopt[ERR=-9]",
	"Safepoint[ERR=-10]",
}

var errCorrupt = errors.New("hpl: corrupt record")

type Options struct {
	DiscardLineNo   bool
	DiscardThread   bool
	ShortenPackages bool
}

// Parse reads an HPL log into the normalized dump model.
func Parse(ctx context.Context, l xlog.Logger, r io.Reader, opts Options) (*dump.Dump, error) {
	p := &parser{
		log:  l,
		opts: opts,
		dump: dump.New(dump.LeafFirst),
		r:    bufio.NewReader(r),
	}

	for i, label := range agentErrors {
		p.dump.SetFrame(dump.FrameID(-1-i), "Error."+label)
	}

	if err := p.run(ctx); err != nil {
		return nil, err
	}
	return p.dump, nil
}

type parser struct {
	log  xlog.Logger
	opts Options
	dump *dump.Dump
	r    *bufio.Reader

	nextTrace dump.TraceID

	inTrace bool
	thread  uint64
	want    int32
	frames  []dump.FrameRef
}

func (p *parser) run(ctx context.Context) error {
	for {
		marker, err := p.r.ReadByte()
		if err == io.EOF {
			p.finishTrace()
			return nil
		}
		if err != nil {
			return err
		}

		switch int8(marker) {
		case markerEnd:
			p.finishTrace()
			return nil
		case markerTrace:
			err = p.readTraceStart()
		case markerFrame:
			err = p.readFrame(ctx, false)
		case markerFullFrame:
			err = p.readFrame(ctx, true)
		case markerMethod:
			err = p.readMethod()
		default:
			// Binary records carry no framing, so an unexpected marker
			// cannot be skipped over. Keep what was decoded so far.
			p.log.Warn(ctx, "Unexpected record marker, stopping",
				zap.Int8("marker", int8(marker)))
			p.finishTrace()
			return nil
		}

		if err != nil {
			if isTruncated(err) || errors.Is(err, errCorrupt) {
				p.log.Warn(ctx, "Truncated record, stopping", zap.Error(err))
				p.finishTrace()
				return nil
			}
			return err
		}
	}
}

func (p *parser) readTraceStart() error {
	frameCount, err := p.readI32()
	if err != nil {
		return err
	}
	threadID, err := p.readU64()
	if err != nil {
		return err
	}

	p.flushTrace()
	p.inTrace = true
	p.thread = threadID

	if frameCount > 0 {
		p.want = frameCount
		p.frames = make([]dump.FrameRef, 0, frameCount)
		return nil
	}
	p.want = 1

	// Non-positive frame counts report an agent error; the trace is the
	// single matching pseudo-frame.
	methodID := dump.FrameID(frameCount - 1)
	if int(-frameCount) >= len(agentErrors) {
		p.dump.SetFrame(methodID, fmt.Sprintf("Error.Unknown err[ERR=%d]", frameCount))
	}
	p.frames = []dump.FrameRef{{Frame: methodID}}
	return nil
}

func (p *parser) readFrame(ctx context.Context, withLine bool) error {
	if _, err := p.readI32(); err != nil { // bci, unused
		return err
	}
	var lineNo int32
	if withLine {
		n, err := p.readI32()
		if err != nil {
			return err
		}
		// Negative values mean the agent had no line information.
		if n > 0 && !p.opts.DiscardLineNo {
			lineNo = n
		}
	}
	methodID, err := p.readU64()
	if err != nil {
		return err
	}

	if !p.inTrace {
		p.log.Warn(ctx, "Skipping frame record outside of a trace",
			zap.Uint64("method", methodID))
		return nil
	}
	p.frames = append(p.frames, dump.FrameRef{
		Frame: dump.FrameID(methodID),
		Line:  lineNo,
	})
	return nil
}

func (p *parser) readMethod() error {
	methodID, err := p.readU64()
	if err != nil {
		return err
	}
	if _, err := p.readString(); err != nil { // file name, unused
		return err
	}
	class, err := p.readString()
	if err != nil {
		return err
	}
	method, err := p.readString()
	if err != nil {
		return err
	}

	label := symbol.FormatClass(class) + "." + method
	if p.opts.ShortenPackages {
		label = symbol.AbbreviatePackage(label)
	}
	p.dump.SetFrame(dump.FrameID(methodID), label)
	return nil
}

// flushTrace commits the current trace as one observed sample.
func (p *parser) flushTrace() {
	if !p.inTrace {
		return
	}
	if !p.opts.DiscardThread {
		p.frames = append(p.frames, dump.FrameRef{
			Frame: p.dump.InternFrame(fmt.Sprintf("Thread %d", p.thread)),
		})
	}

	p.nextTrace++
	p.dump.SetTrace(p.nextTrace, p.frames)
	p.dump.AddSamples(p.nextTrace, 1)

	p.inTrace = false
	p.frames = nil
}

// finishTrace is the end-of-stream flush: the trace counts only if every
// frame its start record declared actually arrived, otherwise its records
// were cut off mid-stream and it is discarded.
func (p *parser) finishTrace() {
	if p.inTrace && int32(len(p.frames)) < p.want {
		p.inTrace = false
		p.frames = nil
		return
	}
	p.flushTrace()
}

func (p *parser) readI32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(p.r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func (p *parser) readU64() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(p.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (p *parser) readString() (string, error) {
	length, err := p.readI32()
	if err != nil {
		return "", err
	}
	if length < 0 || length > maxStringLen {
		return "", fmt.Errorf("%w: bad string length %d", errCorrupt, length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func isTruncated(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
