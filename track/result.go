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
package track

import (
	"github.com/grailbio/readview/pileup/coverage"
	"github.com/grailbio/readview/pileup/diff"
	"github.com/grailbio/readview/pileup/gap"
)

// CoverageResult holds the coverage, diffs and gaps of the alignments
// overlapping a request's interval.  It is immutable once dispatched.
type CoverageResult struct {
	Request  *IntervalRequest      `json:"-"`
	Coverage *coverage.Accumulator `json:"coverage"`
	// Diffs holds the substitutions and deletions inside the interval, one
	// per read, ordered by diff.Compare.
	Diffs []diff.Diff `json:"diffs,omitempty"`
	// Gaps holds the insertions inside the interval, one per read and
	// inserted base, ordered by diff.Compare.
	Gaps []diff.Diff `json:"gaps,omitempty"`
	// GapCounts aggregates Gaps by position and insertion order.
	GapCounts *gap.Table `json:"gapCounts"`
	// Alignments is the number of alignments that passed the filter.
	Alignments int `json:"alignments"`
	// Skipped is the number of alignments left out because they failed to
	// decode.
	Skipped int `json:"skipped,omitempty"`
}

// Req implements Result.
func (r *CoverageResult) Req() *IntervalRequest { return r.Request }

// MappingSummary describes one decoded alignment.
type MappingSummary struct {
	Name       string      `json:"name"`
	TrackID    int         `json:"trackId"`
	Start      PosType     `json:"start"`
	Stop       PosType     `json:"stop"`
	Cigar      string      `json:"cigar"`
	Reverse    bool        `json:"reverse"`
	Class      diff.Class  `json:"class"`
	MapQ       int16       `json:"mapq"`
	Replicates int32       `json:"replicates"`
	Mismatches int         `json:"mismatches"`
	Diffs      []diff.Diff `json:"diffs,omitempty"`
	Gaps       []diff.Diff `json:"gaps,omitempty"`
}

// MappingResult lists the alignments overlapping a request's interval.  It
// is immutable once dispatched.
type MappingResult struct {
	Request  *IntervalRequest `json:"-"`
	Mappings []MappingSummary `json:"mappings"`
	// Skipped is the number of alignments left out because they failed to
	// decode.
	Skipped int `json:"skipped,omitempty"`
}

// Req implements Result.
func (r *MappingResult) Req() *IntervalRequest { return r.Request }
