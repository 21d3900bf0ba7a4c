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
package diff

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/readview/pileup"
)

// Decoded is the result of decoding one alignment.
type Decoded struct {
	// Diffs holds substitutions and deletions, in nondecreasing position order.
	Diffs []Diff
	// Gaps holds insertions, in nondecreasing position order; insertions
	// stacked at one position have increasing Order.
	Gaps []Diff
	// Mismatches counts every substituted, deleted and inserted base.
	Mismatches int
}

// decodeParams carries the per-record values attached to every emitted diff.
type decodeParams struct {
	reverse bool
	start   PosType
	quals   []byte
	mapq    int16
	count   int32
}

// Decode walks cigar over readSeq and refSeq and returns the diffs and gaps
// between them.  refSeq must begin at the alignment's first reference
// position, which is start (1-based).  Bases are compared case-insensitively.
// For reverse-strand alignments, emitted bases are complemented.
//
// Emitted diffs carry Count 1 and unknown qualities; see DecodeRecord for the
// quality-aware variant.
//
// Unrecognized CIGAR operations are skipped without moving either cursor.  A
// CIGAR string with a missing run length, or one that runs past the end of
// readSeq or refSeq, is an error.
func Decode(cigar, readSeq, refSeq string, reverse bool, start PosType) (Decoded, error) {
	return decode(cigar, readSeq, refSeq, decodeParams{
		reverse: reverse,
		start:   start,
		mapq:    UnknownQual,
		count:   1,
	})
}

// DecodeRecord decodes rec, attaching its base qualities, mapping quality and
// replicate count to every emitted diff.
func DecodeRecord(rec *Record) (Decoded, error) {
	count := rec.Replicates
	if count <= 0 {
		count = 1
	}
	d, err := decode(rec.Cigar, rec.ReadSeq, rec.RefSeq, decodeParams{
		reverse: rec.Reverse,
		start:   rec.Start,
		quals:   rec.Quals,
		mapq:    rec.MapQ,
		count:   count,
	})
	if err != nil {
		return d, errors.E(err, fmt.Sprintf("read %s at %s:%d", rec.Name, rec.RefName, rec.Start))
	}
	return d, nil
}

func (p *decodeParams) baseQual(readPos int) int16 {
	if readPos >= len(p.quals) {
		return UnknownQual
	}
	return NormalizeQual(p.quals[readPos])
}

func (p *decodeParams) base(c byte) byte {
	if p.reverse {
		return pileup.Complement(c)
	}
	return pileup.Upper(c)
}

func decode(cigar, readSeq, refSeq string, p decodeParams) (result Decoded, err error) {
	var ops []CigarOp
	if ops, err = ParseCigar(cigar); err != nil {
		return
	}
	refPos := 0
	readPos := 0
	// Scoped to this call: keys are absolute positions, values the next order
	// to hand out there.
	var gapOrders map[PosType]int32
	for _, op := range ops {
		n := op.Len
		switch op.Type {
		case 'M', 'X':
			if readPos+n > len(readSeq) || refPos+n > len(refSeq) {
				err = overrun(cigar, op, readPos, refPos, readSeq, refSeq)
				return
			}
			allMismatch := op.Type == 'X'
			for i := 0; i < n; i++ {
				readBase := readSeq[readPos+i]
				if !allMismatch && pileup.Upper(readBase) == pileup.Upper(refSeq[refPos+i]) {
					continue
				}
				result.Diffs = append(result.Diffs, Diff{
					Kind:     Substitution,
					Pos:      p.start + PosType(refPos+i),
					Base:     p.base(readBase),
					Reverse:  p.reverse,
					Count:    p.count,
					BaseQual: p.baseQual(readPos + i),
					MapQ:     p.mapq,
				})
				result.Mismatches++
			}
			refPos += n
			readPos += n
		case '=':
			refPos += n
			readPos += n
		case 'D':
			if refPos+n > len(refSeq) {
				err = overrun(cigar, op, readPos, refPos, readSeq, refSeq)
				return
			}
			for i := 0; i < n; i++ {
				result.Diffs = append(result.Diffs, Diff{
					Kind:     Deletion,
					Pos:      p.start + PosType(refPos+i),
					Base:     pileup.GapBase,
					Reverse:  p.reverse,
					Count:    p.count,
					BaseQual: UnknownQual,
					MapQ:     p.mapq,
				})
			}
			result.Mismatches += n
			refPos += n
		case 'I':
			if readPos+n > len(readSeq) {
				err = overrun(cigar, op, readPos, refPos, readSeq, refSeq)
				return
			}
			pos := p.start + PosType(refPos)
			if gapOrders == nil {
				gapOrders = make(map[PosType]int32)
			}
			order := gapOrders[pos]
			for i := 0; i < n; i++ {
				result.Gaps = append(result.Gaps, Diff{
					Kind:     Insertion,
					Pos:      pos,
					Base:     p.base(readSeq[readPos+i]),
					Reverse:  p.reverse,
					Count:    p.count,
					BaseQual: p.baseQual(readPos + i),
					MapQ:     p.mapq,
					Order:    order,
				})
				order++
			}
			gapOrders[pos] = order
			result.Mismatches += n
			readPos += n
		case 'N', 'P':
			refPos += n
		case 'S':
			readPos += n
		case 'H':
			// Hard-clipped bases are absent from readSeq.
		default:
			// Unknown operation; leave both cursors where they are.
		}
	}
	return
}

func overrun(cigar string, op CigarOp, readPos, refPos int, readSeq, refSeq string) error {
	return errors.E(errors.Invalid, fmt.Sprintf(
		"diff.Decode: %d%c in %q runs past the sequences (read %d/%d, ref %d/%d)",
		op.Len, op.Type, cigar, readPos, len(readSeq), refPos, len(refSeq)))
}
