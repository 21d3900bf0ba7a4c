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
)

// CigarOp is a single (count, operation) pair of a CIGAR string.  Type is
// the operation character as it appeared in the string; it is not validated,
// since unrecognized operations are skipped during decoding rather than
// rejected.
type CigarOp struct {
	Type byte
	Len  int
}

// maxOpLen bounds a single run length, well above any legal BAM value.
const maxOpLen = 1 << 28

// ParseCigar splits a CIGAR string into its (count, operation) pairs.  Every
// operation must be preceded by a decimal run length; a missing run length,
// or a run length with no operation after it, is an error.  "*" (the SAM
// placeholder for an unavailable CIGAR) and "" both parse to no operations.
func ParseCigar(cigar string) ([]CigarOp, error) {
	if cigar == "*" {
		return nil, nil
	}
	ops := make([]CigarOp, 0, 8)
	n := 0
	nDigit := 0
	for i := 0; i < len(cigar); i++ {
		c := cigar[i]
		if c >= '0' && c <= '9' {
			n = n*10 + int(c-'0')
			nDigit++
			if n > maxOpLen {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("diff.ParseCigar: run length too large at offset %d of %q", i, cigar))
			}
			continue
		}
		if nDigit == 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("diff.ParseCigar: operation %q at offset %d of %q has no run length", c, i, cigar))
		}
		ops = append(ops, CigarOp{Type: c, Len: n})
		n = 0
		nDigit = 0
	}
	if nDigit != 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("diff.ParseCigar: trailing run length without operation in %q", cigar))
	}
	return ops, nil
}

// ConsumesReference returns true for the operations that advance the
// reference cursor.  Padding is treated as reference-consuming, matching how
// alignments are stored upstream.
func ConsumesReference(op byte) bool {
	switch op {
	case 'M', '=', 'X', 'D', 'N', 'P':
		return true
	}
	return false
}

// ConsumesRead returns true for the operations that advance the read cursor.
func ConsumesRead(op byte) bool {
	switch op {
	case 'M', '=', 'X', 'I', 'S':
		return true
	}
	return false
}

// Covers returns true for the operations that place a read base (or a
// deletion gap) on a reference position, i.e. the ones that count towards
// coverage.  Skipped (N) and padded (P) regions are spanned but not covered.
func Covers(op byte) bool {
	switch op {
	case 'M', '=', 'X', 'D':
		return true
	}
	return false
}

// Lengths returns the number of reference and read bases spanned by ops.
func Lengths(ops []CigarOp) (ref, read int) {
	for _, op := range ops {
		if ConsumesReference(op.Type) {
			ref += op.Len
		}
		if ConsumesRead(op.Type) {
			read += op.Len
		}
	}
	return
}

// RefSpan returns the number of reference positions the CIGAR string spans.
// For a well-formed alignment, this is stop - start + 1.
func RefSpan(cigar string) (int, error) {
	ops, err := ParseCigar(cigar)
	if err != nil {
		return 0, err
	}
	ref, _ := Lengths(ops)
	return ref, nil
}
