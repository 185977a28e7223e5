// Package collapsed implements the folded-stacks text format consumed by
// flame-graph renderers: one line per unique stack, frames joined by ';'
// from root to leaf, a single space, then the sample count.
package collapsed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type Sample struct {
	Stack []string
	Value int64
}

// Profile is an ordered set of folded samples. Samples with identical stacks
// are merged on insertion; emission order is first-occurrence order, which
// keeps the output deterministic across runs.
type Profile struct {
	Samples []Sample

	index map[string]int
}

func NewProfile() *Profile {
	return &Profile{
		Samples: make([]Sample, 0),
		index:   make(map[string]int),
	}
}

// Add merges value into the sample for stack, appending a new sample on the
// stack's first occurrence.
func (p *Profile) Add(stack []string, value int64) {
	key := strings.Join(stack, ";")
	if i, ok := p.index[key]; ok {
		p.Samples[i].Value += value
		return
	}
	p.index[key] = len(p.Samples)
	p.Samples = append(p.Samples, Sample{Stack: stack, Value: value})
}

// Total is the sum of all sample values.
func (p *Profile) Total() int64 {
	var total int64
	for _, sample := range p.Samples {
		total += sample.Value
	}
	return total
}

// DecodeFrom parses folded-stacks text and merges it into the profile.
// Feeding one profile several inputs folds them together.
func (p *Profile) DecodeFrom(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<30)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, ' ')
		if idx == -1 {
			return errors.New("collapsed: malformed input")
		}
		count, err := strconv.ParseInt(line[idx+1:], 0, 64)
		if err != nil {
			return fmt.Errorf("collapsed: malformed input: %w", err)
		}
		p.Add(strings.Split(line[:idx], ";"), count)
	}
	return scanner.Err()
}

func Decode(r io.Reader) (*Profile, error) {
	p := NewProfile()
	if err := p.DecodeFrom(r); err != nil {
		return nil, err
	}
	return p, nil
}

func Encode(p *Profile, w io.Writer) error {
	for _, sample := range p.Samples {
		_, err := fmt.Fprintf(w, "%s %d\n", strings.Join(sample.Stack, ";"), sample.Value)
		if err != nil {
			return err
		}
	}
	return nil
}

func Unmarshal(buf []byte) (*Profile, error) {
	return Decode(bytes.NewBuffer(buf))
}

func Marshal(p *Profile) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := Encode(p, buf)
	return buf.Bytes(), err
}
