// Package fasta reads reference sequences from (optionally indexed) FASTA
// files.  See http://www.htslib.org/doc/faidx.html.  A FASTA file holds named
// sequences, each possibly wrapped over several lines:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// The sequence name is the text after '>' up to the first space, so
// '>chr1 A viral sequence' names 'chr1'.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const maxLineSize = 1024 * 1024 * 300 // 300 MB

// Fasta is a set of named reference sequences.
type Fasta interface {
	// Get returns the bases of seqName in the 0-based half-open interval
	// [start, end).  Get is thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the given sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns the names of all sequences, in file order.
	SeqNames() []string
}

// Window returns the upper-cased bases of seqName at the 1-based closed
// interval [start, stop], the coordinate system alignments are reported in.
func Window(f Fasta, seqName string, start, stop int) (string, error) {
	if start < 1 || stop < start {
		return "", errors.Errorf("invalid window %s:%d-%d", seqName, start, stop)
	}
	s, err := f.Get(seqName, uint64(start-1), uint64(stop))
	if err != nil {
		return "", err
	}
	return strings.ToUpper(s), nil
}

// ClippedWindow is like Window, but clips [start, stop] to the sequence.  It
// returns the clipped start along with the bases, and an empty string when
// nothing of the window lies on the sequence.
func ClippedWindow(f Fasta, seqName string, start, stop int) (string, int, error) {
	n, err := f.Len(seqName)
	if err != nil {
		return "", 0, err
	}
	if start < 1 {
		start = 1
	}
	if uint64(stop) > n {
		stop = int(n)
	}
	if stop < start {
		return "", start, nil
	}
	s, err := Window(f, seqName, start, stop)
	return s, start, err
}

type memFasta struct {
	seqs     map[string]string
	seqNames []string
}

// New reads all the FASTA data from r into memory.
func New(r io.Reader) (Fasta, error) {
	f := &memFasta{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLineSize)
	var (
		seqName string
		seq     strings.Builder
		inSeq   bool
	)
	add := func() {
		f.seqs[seqName] = seq.String()
		f.seqNames = append(f.seqNames, seqName)
		seq.Reset()
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if inSeq {
				add()
			}
			seqName = strings.Split(line[1:], " ")[0]
			if seqName == "" {
				return nil, errors.Errorf("malformed FASTA file: empty sequence name")
			}
			if _, ok := f.seqs[seqName]; ok {
				return nil, errors.Errorf("malformed FASTA file: duplicate sequence %s", seqName)
			}
			inSeq = true
			continue
		}
		if !inSeq {
			return nil, errors.Errorf("malformed FASTA file: bases before the first sequence name")
		}
		seq.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA data")
	}
	if inSeq {
		add()
	}
	return f, nil
}

// Get implements Fasta.Get().
func (f *memFasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	if end > uint64(len(s)) {
		return "", errors.Errorf("end is past end of sequence %s: %d", seqName, len(s))
	}
	return s[start:end], nil
}

// Len implements Fasta.Len().
func (f *memFasta) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *memFasta) SeqNames() []string {
	return f.seqNames
}
