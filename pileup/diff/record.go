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
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/readview/pileup"
)

// Class is the mapping classification of an alignment.
type Class uint8

const (
	// ClassUnset means the alignment has not been classified yet; Classify
	// assigns one of the real classes once the alignment is decoded.
	ClassUnset Class = iota
	// Perfect alignments match the reference exactly.
	Perfect
	// BestMatch alignments are the best placement of a read with mismatches.
	BestMatch
	// Common alignments are one of several equally good placements.
	Common
	// NClass is the number of Class values, including ClassUnset.
	NClass
)

var classNames = [NClass]string{"UNSET", "PERFECT", "BEST_MATCH", "COMMON"}

func (c Class) String() string {
	if c < NClass {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", c)
}

// ParseClass parses the name of a classification, case-insensitively.
func ParseClass(s string) (Class, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for c := Perfect; c < NClass; c++ {
		if classNames[c] == u {
			return c, nil
		}
	}
	return ClassUnset, errors.E(errors.Invalid, fmt.Sprintf("diff.ParseClass: unknown classification %q", s))
}

// ClassSet is a filter over classifications.
type ClassSet uint8

// AllClasses accepts every classification.
const AllClasses = ClassSet(1<<Perfect | 1<<BestMatch | 1<<Common)

// NewClassSet returns the set holding exactly the given classes.
func NewClassSet(classes ...Class) ClassSet {
	var s ClassSet
	for _, c := range classes {
		s |= 1 << c
	}
	return s
}

// Contains returns true iff c passes the filter.
func (s ClassSet) Contains(c Class) bool {
	return s&(1<<c) != 0
}

func (s ClassSet) String() string {
	names := make([]string, 0, 3)
	for c := Perfect; c < NClass; c++ {
		if s.Contains(c) {
			names = append(names, classNames[c])
		}
	}
	return strings.Join(names, ",")
}

// ParseClasses parses a comma-separated list of classification names, e.g.
// "PERFECT,COMMON".  An empty string selects every classification.
func ParseClasses(s string) (ClassSet, error) {
	if strings.TrimSpace(s) == "" {
		return AllClasses, nil
	}
	var set ClassSet
	for _, name := range strings.Split(s, ",") {
		c, err := ParseClass(name)
		if err != nil {
			return 0, err
		}
		set |= NewClassSet(c)
	}
	return set, nil
}

// Record is a single alignment ready for decoding.
type Record struct {
	Name    string
	RefName string
	// Start and Stop are the 1-based inclusive reference span of the
	// alignment.
	Start, Stop PosType
	Cigar       string
	ReadSeq     string
	// RefSeq holds the reference bases at [Start, Stop].
	RefSeq  string
	Reverse bool
	// Quals holds raw per-base qualities, parallel to ReadSeq.  May be empty.
	Quals []byte
	// MapQ is the normalized mapping quality; UnknownQual when unavailable.
	MapQ  int16
	Class Class
	// Replicates is the number of identical reads this record stands for.
	Replicates int32
	// TrackID identifies the track the record was read from.
	TrackID int
}

// Placement is the subset of an alignment needed to account for its
// reference coverage.
type Placement struct {
	Start   PosType
	Cigar   string
	Reverse bool
	Class   Class
	TrackID int
	Count   int32
}

// Placement returns the coverage-relevant view of r.
func (r *Record) Placement() Placement {
	n := r.Replicates
	if n <= 0 {
		n = 1
	}
	return Placement{
		Start:   r.Start,
		Cigar:   r.Cigar,
		Reverse: r.Reverse,
		Class:   r.Class,
		TrackID: r.TrackID,
		Count:   n,
	}
}

// Validate checks that the CIGAR string spans exactly [Start, Stop] and that
// RefSeq covers the span.
func (r *Record) Validate() error {
	span, err := RefSpan(r.Cigar)
	if err != nil {
		return err
	}
	if PosType(span) != r.Stop-r.Start+1 {
		return errors.E(errors.Invalid, fmt.Sprintf("read %s: cigar %s spans %d bases, but [%d, %d] holds %d",
			r.Name, r.Cigar, span, r.Start, r.Stop, r.Stop-r.Start+1))
	}
	if len(r.RefSeq) < span {
		return errors.E(errors.Invalid, fmt.Sprintf("read %s: reference slice has %d bases, need %d", r.Name, len(r.RefSeq), span))
	}
	return nil
}

// Classify sets r.Class from the decode result if it is still unset.
func (r *Record) Classify(d Decoded) {
	if r.Class != ClassUnset {
		return
	}
	if d.Mismatches == 0 {
		r.Class = Perfect
	} else {
		r.Class = BestMatch
	}
}

// ClassTag is the aux tag that carries a precomputed classification: a
// single character, 'P', 'B' or 'C'.
var ClassTag = sam.NewTag("Yc")

// classFromAux extracts the classification from the Yc tag, if any.
func classFromAux(r *sam.Record) Class {
	aux := r.AuxFields.Get(ClassTag)
	if aux == nil {
		return ClassUnset
	}
	var c byte
	switch v := aux.Value().(type) {
	case sam.ASCII:
		c = byte(v)
	case byte:
		c = v
	case string:
		if len(v) > 0 {
			c = v[0]
		}
	}
	switch c {
	case 'P', 'p':
		return Perfect
	case 'B', 'b':
		return BestMatch
	case 'C', 'c':
		return Common
	}
	return ClassUnset
}

// FromSAM converts a mapped SAM record.  refSeq must hold the reference
// bases covered by the alignment, starting at r.Pos.  The classification is
// taken from the Yc tag when present; secondary alignments are classified
// Common, and anything else is left for Classify.
func FromSAM(r *sam.Record, refSeq string) (*Record, error) {
	if r.Ref == nil || r.Pos < 0 || (r.Flags&sam.Unmapped) != 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("read %s is unmapped", r.Name))
	}
	rec := &Record{
		Name:       r.Name,
		RefName:    r.Ref.Name(),
		Start:      PosType(r.Pos + 1),
		Stop:       PosType(r.End()),
		Cigar:      r.Cigar.String(),
		ReadSeq:    string(r.Seq.Expand()),
		RefSeq:     refSeq,
		Reverse:    pileup.GetStrand(r) == pileup.StrandRev,
		Quals:      append([]byte(nil), r.Qual...),
		MapQ:       NormalizeQual(r.MapQ),
		Replicates: 1,
		Class:      classFromAux(r),
	}
	if rec.Class == ClassUnset && (r.Flags&sam.Secondary) != 0 {
		rec.Class = Common
	}
	return rec, nil
}
