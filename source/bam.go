// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/readview/encoding/fasta"
	"github.com/grailbio/readview/pileup/diff"
	"v.io/x/lib/vlog"
)

// BAMOpts configures a BAM source.
type BAMOpts struct {
	// Index is the pathname of the *.bam.bai file.  If "", Path + ".bai".
	Index string
	// TrackID is stamped on every record.
	TrackID int
	// DropFlags lists the SAM flags that exclude a record.
	DropFlags sam.Flags
	// MinMapQ drops records with a lower mapping quality.  Records with an
	// unknown mapping quality are kept.
	MinMapQ int
}

// DefaultBAMOpts drops unmapped, QC-failed and duplicate records.
var DefaultBAMOpts = BAMOpts{
	DropFlags: sam.Unmapped | sam.QCFail | sam.Duplicate,
}

// BAM is a Source backed by an indexed BAM file and a reference.  Both the
// BAM and index paths may be anything grailbio/base/file can open, e.g. S3
// URLs.  Readers are pooled, so concurrent queries each get their own.
type BAM struct {
	path string
	ref  fasta.Fasta
	opts BAMOpts
	err  errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
	closed    bool
}

type bamIterator struct {
	in     file.File
	reader *bam.Reader
	index  *bam.Index
	err    error
}

// NewBAM creates a source reading path, with bases from ref.
func NewBAM(path string, ref fasta.Fasta, opts BAMOpts) *BAM {
	return &BAM{path: path, ref: ref, opts: opts}
}

func (b *BAM) indexPath() string {
	if b.opts.Index != "" {
		return b.opts.Index
	}
	return b.path + ".bai"
}

// Header returns the BAM header.
func (b *BAM) Header(ctx context.Context) (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	in, err := file.Open(ctx, b.path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer r.Close() // nolint: errcheck
	b.header = r.Header()
	return b.header, nil
}

// RefNames returns the reference names in the BAM header, in header order.
func (b *BAM) RefNames(ctx context.Context) ([]string, error) {
	h, err := b.Header(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(h.Refs()))
	for _, r := range h.Refs() {
		names = append(names, r.Name())
	}
	return names, nil
}

// Close releases pooled readers.  It returns the first error any reader
// encountered.
func (b *BAM) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		vlog.Fatalf("%d readers still active for %s", b.nActive, b.path)
	}
	for _, iter := range b.freeIters {
		b.closeIterator(iter)
	}
	b.freeIters = nil
	b.closed = true
	return b.err.Err()
}

// allocateIterator returns a pooled reader, or opens a new one.
func (b *BAM) allocateIterator(ctx context.Context) (*bamIterator, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.E(errors.Precondition, fmt.Sprintf("bam source %s is closed", b.path))
	}
	b.nActive++
	if n := len(b.freeIters); n > 0 {
		iter := b.freeIters[n-1]
		b.freeIters = b.freeIters[:n-1]
		b.mu.Unlock()
		return iter, nil
	}
	b.mu.Unlock()

	iter := &bamIterator{}
	if iter.in, iter.err = file.Open(ctx, b.path); iter.err == nil {
		var indexIn file.File
		if indexIn, iter.err = file.Open(ctx, b.indexPath()); iter.err == nil {
			iter.index, iter.err = bam.ReadIndex(indexIn.Reader(ctx))
			indexIn.Close(ctx) // nolint: errcheck
		}
	}
	if iter.err == nil {
		iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1)
	}
	if iter.err != nil {
		err := iter.err
		b.freeIterator(iter)
		return nil, err
	}
	vlog.VI(1).Infof("%s: opened reader", b.path)
	return iter, nil
}

func (b *BAM) freeIterator(iter *bamIterator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("negative active count for %s", b.path)
	}
	if iter.err != nil && iter.err != io.EOF || b.closed {
		// The reader may be in a bad state; don't reuse it.
		b.closeIterator(iter)
		return
	}
	iter.err = nil
	b.freeIters = append(b.freeIters, iter)
}

// closeIterator closes iter.  REQUIRES: b.mu is held.
func (b *BAM) closeIterator(iter *bamIterator) {
	if iter.err != nil && iter.err != io.EOF {
		b.err.Set(iter.err)
	}
	if iter.reader != nil {
		b.err.Set(iter.reader.Close())
		iter.reader = nil
	}
	if iter.in != nil {
		b.err.Set(iter.in.Close(context.Background()))
		iter.in = nil
	}
}

// findRecordOffset returns the file offset of the first record that may
// overlap [startPos, endPos) on ref.  found is false when the index has no
// records there.
func (iter *bamIterator) findRecordOffset(ref *sam.Reference, startPos, endPos int) (bool, bgzf.Offset, error) {
	chunks, err := iter.index.Chunks(ref, startPos, endPos)
	if err == index.ErrInvalid || len(chunks) == 0 {
		return false, bgzf.Offset{}, nil
	}
	if err != nil {
		return false, bgzf.Offset{}, err
	}
	return true, chunks[0].Begin, nil
}

func (b *BAM) findRef(ctx context.Context, refName string) (*sam.Reference, error) {
	h, err := b.Header(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range h.Refs() {
		if r.Name() == refName {
			return r, nil
		}
	}
	return nil, errors.E(errors.NotExist, fmt.Sprintf("reference %s not in %s", refName, b.path))
}

func (b *BAM) keep(r *sam.Record) bool {
	if r.Flags&b.opts.DropFlags != 0 || r.Ref == nil || r.Pos < 0 {
		return false
	}
	if r.MapQ != 255 && int(r.MapQ) < b.opts.MinMapQ {
		return false
	}
	return true
}

// Alignments implements Source.
func (b *BAM) Alignments(ctx context.Context, refName string, left, right PosType) ([]*diff.Record, error) {
	ref, err := b.findRef(ctx, refName)
	if err != nil {
		return nil, err
	}
	if left < 1 {
		left = 1
	}
	if int(right) > ref.Len() {
		right = PosType(ref.Len())
	}
	if right < left {
		return nil, nil
	}
	iter, err := b.allocateIterator(ctx)
	if err != nil {
		return nil, err
	}
	defer b.freeIterator(iter)

	// BAM positions are 0-based; [left, right] becomes [left-1, right).
	found, offset, err := iter.findRecordOffset(ref, int(left-1), int(right))
	if err != nil || !found {
		iter.err = err
		return nil, err
	}
	if iter.err = iter.reader.Seek(offset); iter.err != nil {
		return nil, iter.err
	}
	var recs []*diff.Record
	for {
		var r *sam.Record
		if r, iter.err = iter.reader.Read(); iter.err != nil {
			break
		}
		if r.Ref == nil || r.Ref.ID() != ref.ID() || r.Pos >= int(right) {
			break
		}
		if !b.keep(r) || r.End() < int(left) || r.End() <= r.Pos {
			continue
		}
		// Reads may hang off the end of the reference; those bases are
		// unverifiable and the record is skipped.
		if r.End() > ref.Len() {
			vlog.VI(1).Infof("%s: %s extends past %s", b.path, r.Name, refName)
			continue
		}
		refSeq, err := fasta.Window(b.ref, refName, r.Pos+1, r.End())
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("reference bases for %s", r.Name))
		}
		rec, err := diff.FromSAM(r, refSeq)
		if err != nil {
			return nil, err
		}
		rec.TrackID = b.opts.TrackID
		recs = append(recs, rec)
	}
	if iter.err != nil && iter.err != io.EOF {
		return nil, errors.E(iter.err, fmt.Sprintf("read %s", b.path))
	}
	iter.err = nil
	vlog.VI(1).Infof("%s: %d records in %s:%d-%d", b.path, len(recs), refName, left, right)
	sortRecords(recs)
	return recs, nil
}

// WriteIndex writes a .bai index for the BAM data read from in.
func WriteIndex(out io.Writer, in io.Reader) error {
	r, err := bam.NewReader(in, 1)
	if err != nil {
		return err
	}
	defer r.Close() // nolint: errcheck
	var idx bam.Index
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := idx.Add(rec, r.LastChunk()); err != nil {
			return errors.E(err, fmt.Sprintf("index %s", rec.Name))
		}
	}
	return bam.WriteIndex(out, &idx)
}
