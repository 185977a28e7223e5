// Package hprof parses text dumps produced by the JVM hprof agent
// (java -agentlib:hprof=cpu=samples,...).
//
// The dump carries trace definitions as TRACE blocks with tab-indented call
// sites listed leaf-first, and per-trace sample counts as rows of the
// CPU SAMPLES section. Call-site labels are interned into the frame table,
// so a trace is stored as a sequence of frame ids like in the binary
// formats. Malformed individual records are skipped with a diagnostic;
// only an unrecognizable file shape is fatal.
package hprof

import (
	"bufio"
	"context"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/stackfold/stackfold/pkg/profile/dump"
	"github.com/stackfold/stackfold/pkg/profile/symbol"
	"github.com/stackfold/stackfold/pkg/xlog"
)

var (
	// ErrBadHeader means the input is not an hprof text dump at all.
	ErrBadHeader = errors.New("hprof: no JAVA PROFILE header found")
	// ErrTimeMode means the dump was taken with cpu=times, which records
	// method timings instead of stack sample counts.
	ErrTimeMode = errors.New("hprof: cpu=times dump is not supported, use cpu=samples")
)

var (
	headerRe   = regexp.MustCompile(`^JAVA PROFILE \d\.\d\.\d, created `)
	traceRe    = regexp.MustCompile(`^TRACE (\d+):(?: \(thread=(\d+)\))?`)
	callSiteRe = regexp.MustCompile(`^(.+)\(([^():]+):([^()]+)\)$`)
	samplesRe  = regexp.MustCompile(`^CPU SAMPLES BEGIN \(total = \d+\)`)
	columnsRe  = regexp.MustCompile(`^rank\s+self\s+accum\s+count\s+trace`)
	timeRe     = regexp.MustCompile(`^CPU TIME \(ms\) BEGIN`)
)

type Options struct {
	DiscardLineNo   bool
	DiscardThread   bool
	ShortenPackages bool
}

// Parse reads a whole hprof text dump into the normalized dump model.
func Parse(ctx context.Context, l xlog.Logger, r io.Reader, opts Options) (*dump.Dump, error) {
	p := &parser{
		log:  l,
		opts: opts,
		dump: dump.New(dump.LeafFirst),
	}
	return p.run(ctx, r)
}

type parser struct {
	log  xlog.Logger
	opts Options
	dump *dump.Dump

	lineNo int

	inTrace   bool
	inSamples bool
	trace     dump.TraceID
	thread    string
	frames    []dump.FrameRef
}

func (p *parser) run(ctx context.Context, r io.Reader) (*dump.Dump, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<30)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, ErrBadHeader
	}
	p.lineNo++
	if !headerRe.MatchString(scanner.Text()) {
		return nil, ErrBadHeader
	}

	for scanner.Scan() {
		p.lineNo++
		line := scanner.Text()

		if timeRe.MatchString(line) {
			return nil, ErrTimeMode
		}

		if p.inTrace {
			if strings.HasPrefix(line, "\t") {
				p.callSite(ctx, strings.TrimPrefix(line, "\t"))
				continue
			}
			p.flushTrace()
		}

		switch {
		case p.inSamples:
			p.sampleRow(ctx, line)
		case traceRe.MatchString(line):
			p.startTrace(ctx, line)
		case samplesRe.MatchString(line):
			p.inSamples = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if p.inTrace {
		p.flushTrace()
	}

	return p.dump, nil
}

func (p *parser) startTrace(ctx context.Context, line string) {
	m := traceRe.FindStringSubmatch(line)
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		p.log.Warn(ctx, "Skipping unparsable TRACE header",
			zap.Int("line", p.lineNo), zap.Error(err))
		return
	}
	p.inTrace = true
	p.trace = dump.TraceID(id)
	p.thread = m[2]
	p.frames = nil
}

func (p *parser) callSite(ctx context.Context, site string) {
	// The <empty> marker stands for a trace the agent could not walk.
	// Keep the trace defined so that its samples still fold (to the
	// placeholder stack) instead of dangling.
	if strings.Contains(site, "<empty>") {
		return
	}

	m := callSiteRe.FindStringSubmatch(site)
	if m == nil {
		p.log.Warn(ctx, "Skipping malformed call site",
			zap.Int("line", p.lineNo), zap.String("site", site))
		return
	}

	label := m[1]
	if p.opts.ShortenPackages {
		label = symbol.AbbreviatePackage(label)
	}

	var lineNo int32
	if !p.opts.DiscardLineNo {
		// "Unknown line" and other non-numeric markers mean no line info.
		if n, err := strconv.ParseInt(m[3], 10, 32); err == nil && n > 0 {
			lineNo = int32(n)
		}
	}

	p.frames = append(p.frames, dump.FrameRef{
		Frame: p.dump.InternFrame(label),
		Line:  lineNo,
	})
}

func (p *parser) flushTrace() {
	if p.thread != "" && !p.opts.DiscardThread && len(p.frames) > 0 {
		// Appended after the leaf-first frames, the thread pseudo-frame
		// becomes the stack root once the folder reverses the trace.
		p.frames = append(p.frames, dump.FrameRef{
			Frame: p.dump.InternFrame("Thread " + p.thread),
		})
	}
	p.dump.SetTrace(p.trace, p.frames)
	p.inTrace = false
	p.frames = nil
}

func (p *parser) sampleRow(ctx context.Context, line string) {
	if strings.HasPrefix(line, "CPU SAMPLES END") {
		p.inSamples = false
		return
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || columnsRe.MatchString(trimmed) {
		return
	}

	// rank, self%, accum%, count, trace, method...
	fields := strings.Fields(trimmed)
	if len(fields) < 5 {
		p.log.Warn(ctx, "Skipping malformed sample row",
			zap.Int("line", p.lineNo), zap.String("row", trimmed))
		return
	}
	count, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		p.log.Warn(ctx, "Skipping sample row with bad count",
			zap.Int("line", p.lineNo), zap.Error(err))
		return
	}
	trace, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		p.log.Warn(ctx, "Skipping sample row with bad trace id",
			zap.Int("line", p.lineNo), zap.Error(err))
		return
	}

	p.dump.AddSamples(dump.TraceID(trace), count)
}
