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
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/readview/pileup/coverage"
	"github.com/grailbio/readview/pileup/diff"
	"github.com/grailbio/readview/pileup/gap"
	"github.com/grailbio/readview/source"
)

// Opts configures query processing.
type Opts struct {
	// Parallelism bounds the number of goroutines decoding the alignments of
	// one request.
	Parallelism int
	// MaxInterval is the longest interval a request may ask for.
	MaxInterval int
	// MinDecodeBatch is the smallest number of alignments worth decoding in
	// parallel.
	MinDecodeBatch int
}

// DefaultOpts is suitable for interactive use.
var DefaultOpts = Opts{
	Parallelism:    runtime.NumCPU(),
	MaxInterval:    1 << 20,
	MinDecodeBatch: 256,
}

// trackSource is one input of a connector.  track is 0 for single-track
// connectors, else the dual-track channel pair the source feeds.
type trackSource struct {
	id    int
	src   source.Source
	track coverage.Track
}

// decodedSet holds the filtered alignments of one source with their decode
// results.
type decodedSet struct {
	ts      trackSource
	recs    []*diff.Record
	decoded []diff.Decoded
	// skipped counts the alignments that failed to decode.
	skipped int
}

// decodeAll decodes and classifies recs.  Decoding is pure, so records are
// split into contiguous batches decoded in parallel; each record is only
// touched by its own batch.  A record that fails to decode is logged and
// marked as not ok; the others are unaffected.
func decodeAll(recs []*diff.Record, opts Opts) (decoded []diff.Decoded, ok []bool) {
	if len(recs) == 0 {
		return nil, nil
	}
	decoded = make([]diff.Decoded, len(recs))
	ok = make([]bool, len(recs))
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if batch := opts.MinDecodeBatch; batch > 0 && len(recs)/batch < parallelism {
		parallelism = len(recs)/batch + 1
	}
	if parallelism > len(recs) {
		parallelism = len(recs)
	}
	traverse.Each(parallelism, func(jobIdx int) error { // nolint: errcheck
		startIdx := (jobIdx * len(recs)) / parallelism
		endIdx := ((jobIdx + 1) * len(recs)) / parallelism
		for i := startIdx; i < endIdx; i++ {
			d, err := diff.DecodeRecord(recs[i])
			if err != nil {
				log.Debug.Printf("skipping read %s: %v", recs[i].Name, err)
				continue
			}
			recs[i].Classify(d)
			decoded[i] = d
			ok[i] = true
		}
		return nil
	})
	return decoded, ok
}

func validate(req *IntervalRequest, opts Opts) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if n := int(req.Right-req.Left) + 1; opts.MaxInterval > 0 && n > opts.MaxInterval {
		return errors.E(errors.Invalid, fmt.Sprintf("interval %v spans %d bases, more than the limit of %d", req.Region(), n, opts.MaxInterval))
	}
	return nil
}

// fetch collects and decodes the alignments of every source req asks for,
// keeping those that pass the classification filter.
func fetch(ctx context.Context, sources []trackSource, req *IntervalRequest, opts Opts) ([]decodedSet, error) {
	if err := validate(req, opts); err != nil {
		return nil, err
	}
	var sets []decodedSet
	for _, ts := range sources {
		if !req.wantsTrack(ts.id) {
			continue
		}
		recs, err := ts.src.Alignments(ctx, req.RefName, req.Left, req.Right)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("track %d", ts.id))
		}
		decoded, ok := decodeAll(recs, opts)
		set := decodedSet{ts: ts}
		for i, rec := range recs {
			if !ok[i] {
				set.skipped++
				continue
			}
			if req.Classes.Contains(rec.Class) {
				set.recs = append(set.recs, rec)
				set.decoded = append(set.decoded, decoded[i])
			}
		}
		if set.skipped > 0 {
			log.Error.Printf("request %v: track %d: skipped %d of %d alignments that failed to decode", req, ts.id, set.skipped, len(recs))
		}
		log.Debug.Printf("request %v: track %d: %d of %d alignments pass", req, ts.id, len(set.recs), len(recs))
		sets = append(sets, set)
	}
	return sets, nil
}

func sortDiffs(diffs []diff.Diff) {
	sort.SliceStable(diffs, func(i, j int) bool { return diff.Less(diffs[i], diffs[j]) })
}

// processCoverage folds the alignments of req into a fresh accumulator.
// Diffs and gaps are kept when they fall inside the interval; an insertion at
// Right+1 sits after the last displayed base and is dropped.
func processCoverage(ctx context.Context, sources []trackSource, req *IntervalRequest, opts Opts, withDiffs bool) (*CoverageResult, error) {
	sets, err := fetch(ctx, sources, req, opts)
	if err != nil {
		return nil, err
	}
	acc := coverage.New(req.Left, req.Right)
	acc.GrowToIntervalSize()
	for _, ts := range sources {
		if ts.track != 0 {
			acc.GrowDualTrackChannels()
			break
		}
	}
	res := &CoverageResult{
		Request:   req,
		Coverage:  acc,
		GapCounts: gap.NewTable(),
	}
	inside := func(pos PosType) bool { return pos >= req.Left && pos <= req.Right }
	for _, set := range sets {
		res.Skipped += set.skipped
		for i, rec := range set.recs {
			p := rec.Placement()
			if err := acc.AddAlignment(p); err != nil {
				return nil, err
			}
			if set.ts.track != 0 {
				if err := acc.AddTrackAlignment(p, set.ts.track); err != nil {
					return nil, err
				}
			}
			d := set.decoded[i]
			for _, g := range d.Gaps {
				if inside(g.Pos) {
					res.GapCounts.Add(g)
					if withDiffs {
						res.Gaps = append(res.Gaps, g)
					}
				}
			}
			if withDiffs {
				for _, x := range d.Diffs {
					if inside(x.Pos) {
						res.Diffs = append(res.Diffs, x)
					}
				}
			}
			res.Alignments++
		}
	}
	sortDiffs(res.Diffs)
	sortDiffs(res.Gaps)
	acc.SetHighestCoverage(acc.MaxTotal())
	return res, nil
}

// processMappings lists the alignments of req.
func processMappings(ctx context.Context, sources []trackSource, req *IntervalRequest, opts Opts, withDiffs bool) (*MappingResult, error) {
	sets, err := fetch(ctx, sources, req, opts)
	if err != nil {
		return nil, err
	}
	res := &MappingResult{Request: req}
	for _, set := range sets {
		res.Skipped += set.skipped
		for i, rec := range set.recs {
			d := set.decoded[i]
			m := MappingSummary{
				Name:       rec.Name,
				TrackID:    set.ts.id,
				Start:      rec.Start,
				Stop:       rec.Stop,
				Cigar:      rec.Cigar,
				Reverse:    rec.Reverse,
				Class:      rec.Class,
				MapQ:       rec.MapQ,
				Replicates: rec.Placement().Count,
				Mismatches: d.Mismatches,
			}
			if withDiffs {
				m.Diffs = d.Diffs
				m.Gaps = d.Gaps
			}
			res.Mappings = append(res.Mappings, m)
		}
	}
	sort.SliceStable(res.Mappings, func(i, j int) bool {
		return res.Mappings[i].Start < res.Mappings[j].Start
	})
	return res, nil
}
