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

// Package coverage accumulates per-position read depth over a closed
// reference interval, split into named channels.
package coverage

import (
	"encoding/json"

	"github.com/grailbio/base/log"
	"github.com/grailbio/readview/pileup"
	"github.com/grailbio/readview/pileup/diff"
)

// PosType is the integer type used to represent genomic positions.
type PosType = pileup.PosType

// Channel names one coverage array.
type Channel int

const (
	PerfectFwd Channel = iota
	PerfectRev
	BestMatchFwd
	BestMatchRev
	CommonFwd
	CommonRev
	// NClassChannel is the number of classification channels; the dual-track
	// channels follow.
	NClassChannel
)

const (
	Track1Fwd Channel = NClassChannel + iota
	Track1Rev
	Track2Fwd
	Track2Rev
	// NChannel is the total number of channels.
	NChannel
)

var channelNames = [NChannel]string{
	"perfect+", "perfect-", "bestMatch+", "bestMatch-", "common+", "common-",
	"track1+", "track1-", "track2+", "track2-",
}

func (c Channel) String() string {
	return channelNames[c]
}

// ClassChannel returns the channel for the given classification and strand.
func ClassChannel(class diff.Class, strand pileup.StrandType) Channel {
	var c Channel
	switch class {
	case diff.Perfect:
		c = PerfectFwd
	case diff.BestMatch:
		c = BestMatchFwd
	case diff.Common:
		c = CommonFwd
	default:
		log.Panicf("coverage.ClassChannel: alignment is not classified (%v)", class)
	}
	return c + Channel(strand)
}

// Track selects one side of a two-track comparison.
type Track int

const (
	Track1 Track = iota + 1
	Track2
)

// TrackChannel returns the dual-track channel for the given track and
// strand.
func TrackChannel(track Track, strand pileup.StrandType) Channel {
	switch track {
	case Track1:
		return Track1Fwd + Channel(strand)
	case Track2:
		return Track2Fwd + Channel(strand)
	}
	log.Panicf("coverage.TrackChannel: invalid track %d", track)
	return 0
}

// Accumulator holds coverage counts for the closed interval [Left, Right].
// Channels are sized lazily: see GrowToIntervalSize and
// GrowDualTrackChannels.  An Accumulator is not thread-safe.
type Accumulator struct {
	left, right PosType
	channels    [NChannel][]int32
	highest     int
}

// New creates an accumulator for [left, right].  New(0, 0) creates an
// accumulator that covers nothing.
func New(left, right PosType) *Accumulator {
	if left > right {
		log.Panicf("coverage.New: empty interval [%d, %d]", left, right)
	}
	return &Accumulator{left: left, right: right}
}

// Left returns the first position of the interval.
func (a *Accumulator) Left() PosType { return a.left }

// Right returns the last position of the interval.
func (a *Accumulator) Right() PosType { return a.right }

// Len returns the number of positions in the interval.
func (a *Accumulator) Len() int {
	if a.left == 0 && a.right == 0 {
		return 0
	}
	return int(a.right-a.left) + 1
}

// CoversBounds returns true iff [l, r] is a non-empty interval inside the
// accumulator's interval.  It is always false for the degenerate (0, 0)
// accumulator.
func (a *Accumulator) CoversBounds(l, r PosType) bool {
	if a.left == 0 && a.right == 0 {
		return false
	}
	return a.left <= l && l <= r && r <= a.right
}

// GrowToIntervalSize allocates every classification channel that is still
// empty.  Channels that already hold data are left untouched, so repeated
// calls are no-ops.
func (a *Accumulator) GrowToIntervalSize() {
	a.grow(0, NClassChannel)
}

// GrowDualTrackChannels is GrowToIntervalSize for the dual-track channels.
func (a *Accumulator) GrowDualTrackChannels() {
	a.grow(Track1Fwd, NChannel)
}

func (a *Accumulator) grow(from, to Channel) {
	n := a.Len()
	for c := from; c < to; c++ {
		if len(a.channels[c]) == 0 {
			a.channels[c] = make([]int32, n)
		}
	}
}

// HasDualTrackChannels returns true once GrowDualTrackChannels has run on a
// non-empty interval.
func (a *Accumulator) HasDualTrackChannels() bool {
	return len(a.channels[Track1Fwd]) > 0
}

func (a *Accumulator) index(c Channel, pos PosType) int {
	i := int(pos - a.left)
	if pos < a.left || pos > a.right || i >= len(a.channels[c]) {
		log.Panicf("coverage: position %d outside [%d, %d] (channel %v, length %d)",
			pos, a.left, a.right, c, len(a.channels[c]))
	}
	return i
}

// Set sets the coverage of channel c at pos.
func (a *Accumulator) Set(c Channel, pos PosType, v int32) {
	a.channels[c][a.index(c, pos)] = v
}

// Increment adds one to the coverage of channel c at pos.
func (a *Accumulator) Increment(c Channel, pos PosType) {
	a.channels[c][a.index(c, pos)]++
}

// IncrementBy adds delta to the coverage of channel c at pos.
func (a *Accumulator) IncrementBy(c Channel, pos PosType, delta int32) {
	a.channels[c][a.index(c, pos)] += delta
}

// Get returns the coverage of channel c at pos.
func (a *Accumulator) Get(c Channel, pos PosType) int32 {
	return a.channels[c][a.index(c, pos)]
}

// Channel returns the backing array of channel c; element i holds the
// coverage at Left()+i.  It is empty until the channel has been grown.
func (a *Accumulator) Channel(c Channel) []int32 {
	return a.channels[c]
}

// SetHighestCoverage records the display scale chosen by the caller.
func (a *Accumulator) SetHighestCoverage(v int) {
	a.highest = v
}

// HighestCoverage returns the value last passed to SetHighestCoverage.
func (a *Accumulator) HighestCoverage() int {
	return a.highest
}

// MaxTotal returns the largest per-position sum over the classification
// channels.
func (a *Accumulator) MaxTotal() int {
	max := 0
	for i := 0; i < a.Len(); i++ {
		total := 0
		for c := Channel(0); c < NClassChannel; c++ {
			if ch := a.channels[c]; i < len(ch) {
				total += int(ch[i])
			}
		}
		if total > max {
			max = total
		}
	}
	return max
}

// visit calls fn for every reference position in [Left, Right] that p covers.
func (a *Accumulator) visit(p diff.Placement, fn func(pos PosType)) error {
	ops, err := diff.ParseCigar(p.Cigar)
	if err != nil {
		return err
	}
	pos := p.Start
	for _, op := range ops {
		if !diff.ConsumesReference(op.Type) {
			continue
		}
		end := pos + PosType(op.Len)
		if diff.Covers(op.Type) {
			from, to := pos, end-1
			if from < a.left {
				from = a.left
			}
			if to > a.right {
				to = a.right
			}
			for x := from; x <= to; x++ {
				fn(x)
			}
		}
		pos = end
	}
	return nil
}

// AddAlignment counts p on its classification channel for every position of
// the interval it covers.  Matched, mismatched and deleted positions are
// covered; skipped and padded ones are not.  The classification channels must
// have been grown.
func (a *Accumulator) AddAlignment(p diff.Placement) error {
	c := ClassChannel(p.Class, pileup.StrandOf(p.Reverse))
	return a.visit(p, func(pos PosType) { a.IncrementBy(c, pos, p.Count) })
}

// AddTrackAlignment counts p on the dual-track channel of the given track.
// The dual-track channels must have been grown.
func (a *Accumulator) AddTrackAlignment(p diff.Placement, track Track) error {
	c := TrackChannel(track, pileup.StrandOf(p.Reverse))
	return a.visit(p, func(pos PosType) { a.IncrementBy(c, pos, p.Count) })
}

type jsonAccumulator struct {
	Left            PosType            `json:"left"`
	Right           PosType            `json:"right"`
	HighestCoverage int                `json:"highestCoverage"`
	Channels        map[string][]int32 `json:"channels"`
}

// MarshalJSON renders the bounds and every allocated channel.
func (a *Accumulator) MarshalJSON() ([]byte, error) {
	j := jsonAccumulator{
		Left:            a.left,
		Right:           a.right,
		HighestCoverage: a.highest,
		Channels:        make(map[string][]int32),
	}
	for c, ch := range a.channels {
		if len(ch) > 0 {
			j.Channels[channelNames[c]] = ch
		}
	}
	return json.Marshal(j)
}
