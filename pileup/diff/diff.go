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

	"github.com/grailbio/readview/pileup"
)

// PosType is the integer type used to represent genomic positions.
type PosType = pileup.PosType

// UnknownQual is the normalized "quality not available" value.  It is
// distinct from a legitimate quality of 0, and must never be summed into a
// quality aggregate.
const UnknownQual int16 = -1

// rawUnknownQual is the wire value (BAM MAPQ, and BAM per-base quality) that
// means "not available".
const rawUnknownQual = 255

// NormalizeQual maps a raw quality byte to its internal value.
func NormalizeQual(raw byte) int16 {
	if raw == rawUnknownQual {
		return UnknownQual
	}
	return int16(raw)
}

// Kind distinguishes the three sorts of discrepancies.
type Kind uint8

const (
	// Substitution means the read has a different base at Pos.
	Substitution Kind = iota
	// Deletion means the reference base at Pos is missing from the read.  Base
	// is pileup.GapBase.
	Deletion
	// Insertion means the read has a base not present in the reference,
	// immediately before reference position Pos.  Order numbers stacked
	// insertions at the same position from 0.
	Insertion
)

var kindNames = [...]string{"substitution", "deletion", "insertion"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Diff is a single-base discrepancy between a read and the reference.
//
// Insertions are what is elsewhere called a "reference gap": Order is only
// meaningful for them, and is 0 for the other kinds.
type Diff struct {
	Kind Kind
	// Pos is the absolute 1-based reference position.
	Pos PosType
	// Base is upper case and in sequencing orientation, i.e. complemented
	// relative to the reference for reverse-strand reads.
	Base    byte
	Reverse bool
	// Count is the number of identical reads this diff stands for.
	Count    int32
	BaseQual int16
	MapQ     int16
	Order    int32
}

// String implements fmt.Stringer.
func (d Diff) String() string {
	strand := pileup.StrandTypeToASCIITable[pileup.StrandOf(d.Reverse)]
	if d.Kind == Insertion {
		return fmt.Sprintf("%v@%d.%d:%c%c", d.Kind, d.Pos, d.Order, d.Base, strand)
	}
	return fmt.Sprintf("%v@%d:%c%c", d.Kind, d.Pos, d.Base, strand)
}

// Compare returns (negative int, 0, positive int) if (a<b, a=b, a>b)
// respectively.  Diffs are ordered by position, with insertions (which sit
// before their position) first, then by insertion order, base and strand.
// Count and qualities do not participate.
func Compare(a, b Diff) int {
	if a.Pos != b.Pos {
		return int(a.Pos) - int(b.Pos)
	}
	ai := a.Kind == Insertion
	bi := b.Kind == Insertion
	if ai != bi {
		if ai {
			return -1
		}
		return 1
	}
	if a.Order != b.Order {
		return int(a.Order) - int(b.Order)
	}
	if a.Base != b.Base {
		return int(a.Base) - int(b.Base)
	}
	if a.Reverse != b.Reverse {
		if a.Reverse {
			return 1
		}
		return -1
	}
	return 0
}

// Less returns true iff a sorts before b under Compare.
func Less(a, b Diff) bool {
	return Compare(a, b) < 0
}

// SameSite returns true iff a and b describe the same event (same kind,
// position, order, base and strand), so their counts can be merged.
func SameSite(a, b Diff) bool {
	return a.Kind == b.Kind && Compare(a, b) == 0
}
