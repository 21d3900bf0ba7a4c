package fasta

import (
	"bufio"
	"io"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// An index line reads "<name>\t<length>\t<byte offset>\t<bases per
// line>\t<bytes per line>", e.g. "chr3\t12345\t9000\t80\t81".
var indexRegExp = regexp.MustCompile(`^(\S+)\t(\d+)\t(\d+)\t(\d+)\t(\d+)`)

type indexEntry struct {
	length    uint64
	offset    uint64
	lineBase  uint64
	lineWidth uint64
}

type indexedFasta struct {
	seqs     map[string]indexEntry
	seqNames []string

	mu        sync.Mutex
	reader    io.ReadSeeker
	bufOff    int64
	buf       []byte // caches file contents starting at bufOff.
	resultBuf []byte
}

func parseIndex(index io.Reader) (map[string]indexEntry, []string, error) {
	seqs := make(map[string]indexEntry)
	var names []string
	scanner := bufio.NewScanner(index)
	for scanner.Scan() {
		if len(scanner.Text()) == 0 {
			continue
		}
		m := indexRegExp.FindStringSubmatch(scanner.Text())
		if len(m) != 6 {
			return nil, nil, errors.Errorf("invalid index line: %s", scanner.Text())
		}
		var (
			ent  indexEntry
			vals = []*uint64{&ent.length, &ent.offset, &ent.lineBase, &ent.lineWidth}
		)
		for i, v := range vals {
			n, err := strconv.ParseUint(m[i+2], 10, 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "index line %s", scanner.Text())
			}
			*v = n
		}
		if ent.lineBase == 0 || ent.lineWidth < ent.lineBase {
			return nil, nil, errors.Errorf("invalid line geometry in index line: %s", scanner.Text())
		}
		seqs[m[1]] = ent
		names = append(names, m[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "couldn't read FASTA index")
	}
	sort.SliceStable(names, func(i, j int) bool {
		return seqs[names[i]].offset < seqs[names[j]].offset
	})
	return seqs, names, nil
}

// NewIndexed creates a Fasta that reads bases on demand from r, using a
// samtools-style .fai index.
func NewIndexed(r io.ReadSeeker, index io.Reader) (Fasta, error) {
	seqs, names, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	return &indexedFasta{seqs: seqs, seqNames: names, reader: r}, nil
}

// FaiToReferenceLengths returns the sequence lengths recorded in a .fai
// index, without touching the FASTA file itself.
func FaiToReferenceLengths(index io.Reader) (map[string]uint64, error) {
	seqs, _, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	lengths := make(map[string]uint64, len(seqs))
	for name, ent := range seqs {
		lengths[name] = ent.length
	}
	return lengths, nil
}

// Len implements Fasta.Len().
func (f *indexedFasta) Len(seqName string) (uint64, error) {
	ent, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return ent.length, nil
}

// SeqNames implements Fasta.SeqNames().
func (f *indexedFasta) SeqNames() []string {
	return f.seqNames
}

// read returns the file bytes [off, off+n).  REQUIRES: f.mu is held.
func (f *indexedFasta) read(off int64, n int) ([]byte, error) {
	limit := off + int64(n)
	if off >= f.bufOff && limit <= f.bufOff+int64(len(f.buf)) {
		return f.buf[off-f.bufOff : limit-f.bufOff], nil
	}
	if got, err := f.reader.Seek(off, io.SeekStart); err != nil || got != off {
		return nil, errors.Errorf("failed to seek to offset %d: %d, %v", off, got, err)
	}
	size := 8192
	if size < n {
		size = n
	}
	f.buf = resize(f.buf, size)
	nRead, err := io.ReadAtLeast(f.reader, f.buf, n)
	if err != nil {
		f.buf = f.buf[:0]
		return nil, errors.Wrapf(err, "unexpected end of FASTA file at offset %d (bad index?)", off)
	}
	f.bufOff = off
	f.buf = f.buf[:nRead]
	return f.buf[:n], nil
}

func resize(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

// Get implements Fasta.Get().
func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	ent, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if end > ent.length {
		return "", errors.Errorf("end is past end of sequence %s: %d", seqName, ent.length)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Translate base offsets into byte offsets, skipping the line terminators.
	eol := ent.lineWidth - ent.lineBase
	offset := ent.offset + start + eol*(start/ent.lineBase)
	firstLineBases := ent.lineBase - start%ent.lineBase
	var newlines uint64
	if end-start > firstLineBases {
		newlines = 1 + (end-start-firstLineBases)/ent.lineBase
	}
	data, err := f.read(int64(offset), int(end-start+newlines*eol))
	if err != nil {
		return "", err
	}
	f.resultBuf = f.resultBuf[:0]
	linePos := start % ent.lineBase
	for _, c := range data {
		if linePos < ent.lineBase {
			f.resultBuf = append(f.resultBuf, c)
		}
		if linePos++; linePos == ent.lineWidth {
			linePos = 0
		}
	}
	return string(f.resultBuf), nil
}
