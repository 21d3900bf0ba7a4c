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

// Package track serves coverage and mapping queries over one or two
// alignment tracks.  Each track (or pair of tracks) gets a Connector holding
// one latest-request-wins queue per query category.
package track

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/readview/interval"
	"github.com/grailbio/readview/pileup"
	"github.com/grailbio/readview/pileup/diff"
)

// PosType is the integer type used to represent genomic positions.
type PosType = pileup.PosType

// Category is one of the four independent kinds of queries.
type Category int

const (
	// Coverage queries produce a CoverageResult for on-screen display.
	Coverage Category = iota
	// CoverageAnalysis queries produce a CoverageResult for analysis; their
	// results always include diffs and gaps.
	CoverageAnalysis
	// Mapping queries produce a MappingResult.
	Mapping
	// MappingAnalysis queries produce a MappingResult that always includes
	// per-alignment diffs.
	MappingAnalysis
	// NCategory is the number of categories.
	NCategory
)

var categoryNames = [NCategory]string{"coverage", "coverage-analysis", "mappings", "mappings-analysis"}

func (c Category) String() string {
	if c >= 0 && c < NCategory {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// ParseCategory is the inverse of Category.String.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return Category(c), nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown query category %q", s))
}

// Result is what a Receiver gets for a processed request.
type Result interface {
	// Req returns the request the result answers.
	Req() *IntervalRequest
}

// Receiver is the sender of a request, to which the result is delivered.
// Receive runs on the queue's worker goroutine; a slow Receive delays the
// next request of the same category.
type Receiver interface {
	Receive(Result)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(Result)

// Receive implements Receiver.
func (f ReceiverFunc) Receive(r Result) { f(r) }

// Notifiable may be implemented by a Receiver that wants to know when one of
// its requests will never produce a result.
type Notifiable interface {
	// Superseded is called when req was replaced by a newer request before
	// processing started.
	Superseded(req *IntervalRequest)
	// Failed is called when processing req failed.
	Failed(req *IntervalRequest, err error)
}

// IntervalRequest asks for the alignments in [Left, Right] on RefName.
type IntervalRequest struct {
	// ID identifies the request in logs and results.
	ID      string
	RefName string
	// Left and Right are 1-based and inclusive.
	Left, Right PosType
	// TrackIDs restricts the query to some of a dual connector's tracks.
	// Empty means all of them.
	TrackIDs []int
	// Classes filters alignments by classification.
	Classes diff.ClassSet
	// WithDiffs asks for per-alignment (mapping) or per-read (coverage) diffs
	// and gaps in the result.
	WithDiffs bool
	Receiver  Receiver
}

// NewIntervalRequest creates a request for the given region with a fresh ID.
func NewIntervalRequest(region interval.Entry, classes diff.ClassSet, recv Receiver) *IntervalRequest {
	return &IntervalRequest{
		ID:       uuid.New().String(),
		RefName:  region.RefName,
		Left:     region.Left(),
		Right:    region.Right(),
		Classes:  classes,
		Receiver: recv,
	}
}

// Validate checks the request's bounds.
func (r *IntervalRequest) Validate() error {
	if r.RefName == "" {
		return errors.E(errors.Invalid, "request has no reference name")
	}
	if r.Left < 1 || r.Right < r.Left {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid interval [%d, %d]", r.Left, r.Right))
	}
	if r.Classes == 0 {
		return errors.E(errors.Invalid, "request selects no classification")
	}
	return nil
}

// Region returns the request's interval as a region.
func (r *IntervalRequest) Region() interval.Entry {
	return interval.Entry{RefName: r.RefName, Start0: r.Left - 1, End: r.Right}
}

func (r *IntervalRequest) String() string {
	return fmt.Sprintf("%s %s [%v]", r.ID, r.Region(), r.Classes)
}

func (r *IntervalRequest) wantsTrack(id int) bool {
	if len(r.TrackIDs) == 0 {
		return true
	}
	for _, t := range r.TrackIDs {
		if t == id {
			return true
		}
	}
	return false
}
