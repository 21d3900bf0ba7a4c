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
package coverage_test

import (
	"testing"

	"github.com/grailbio/readview/pileup"
	"github.com/grailbio/readview/pileup/coverage"
	"github.com/grailbio/readview/pileup/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoversBounds(t *testing.T) {
	empty := coverage.New(0, 0)
	assert.False(t, empty.CoversBounds(0, 0))
	assert.False(t, empty.CoversBounds(1, 10))
	assert.Equal(t, 0, empty.Len())

	a := coverage.New(100, 200)
	assert.True(t, a.CoversBounds(100, 200))
	assert.True(t, a.CoversBounds(150, 160))
	assert.False(t, a.CoversBounds(99, 150))
	assert.False(t, a.CoversBounds(150, 201))
	assert.True(t, a.CoversBounds(150, 150))
	assert.False(t, a.CoversBounds(150, 120))
	assert.False(t, a.CoversBounds(200, 100))
	assert.Equal(t, 101, a.Len())
}

func TestGrowIsIdempotent(t *testing.T) {
	a := coverage.New(10, 19)
	assert.Empty(t, a.Channel(coverage.PerfectFwd))
	a.GrowToIntervalSize()
	require.Len(t, a.Channel(coverage.PerfectFwd), 10)
	require.Empty(t, a.Channel(coverage.Track1Fwd))

	a.Set(coverage.PerfectFwd, 10, 7)
	a.Increment(coverage.CommonRev, 19)
	a.IncrementBy(coverage.CommonRev, 19, 4)
	a.GrowToIntervalSize()
	assert.Equal(t, int32(7), a.Get(coverage.PerfectFwd, 10))
	assert.Equal(t, int32(5), a.Get(coverage.CommonRev, 19))

	assert.False(t, a.HasDualTrackChannels())
	a.GrowDualTrackChannels()
	assert.True(t, a.HasDualTrackChannels())
	a.Set(coverage.Track2Rev, 15, 3)
	a.GrowDualTrackChannels()
	a.GrowToIntervalSize()
	assert.Equal(t, int32(3), a.Get(coverage.Track2Rev, 15))
	assert.Equal(t, int32(7), a.Get(coverage.PerfectFwd, 10))
}

func TestOutOfRangePanics(t *testing.T) {
	a := coverage.New(10, 19)
	assert.Panics(t, func() { a.Increment(coverage.PerfectFwd, 10) }, "channel not grown")
	a.GrowToIntervalSize()
	assert.Panics(t, func() { a.Increment(coverage.PerfectFwd, 9) })
	assert.Panics(t, func() { a.Set(coverage.PerfectFwd, 20, 1) })
	assert.NotPanics(t, func() { a.Increment(coverage.PerfectFwd, 19) })
}

func TestAddAlignment(t *testing.T) {
	a := coverage.New(100, 110)
	a.GrowToIntervalSize()
	// Covers 100..102 and 104..110: 103 is skipped and 106 is deleted.
	p := diff.Placement{Start: 98, Cigar: "2S5M1N2M1I1D20M", Class: diff.BestMatch, Count: 2}
	require.NoError(t, a.AddAlignment(p))
	for pos := coverage.PosType(100); pos <= 110; pos++ {
		want := int32(2)
		if pos == 103 {
			want = 0
		}
		assert.Equal(t, want, a.Get(coverage.BestMatchFwd, pos), "pos %d", pos)
		assert.Equal(t, int32(0), a.Get(coverage.BestMatchRev, pos))
	}

	rev := diff.Placement{Start: 105, Cigar: "3M", Reverse: true, Class: diff.Perfect, Count: 1}
	require.NoError(t, a.AddAlignment(rev))
	assert.Equal(t, int32(1), a.Get(coverage.PerfectRev, 107))
	assert.Equal(t, int32(0), a.Get(coverage.PerfectRev, 108))
	assert.Equal(t, 3, a.MaxTotal())

	assert.Error(t, a.AddAlignment(diff.Placement{Start: 100, Cigar: "M", Class: diff.Perfect}))
	assert.Panics(t, func() { _ = a.AddAlignment(diff.Placement{Start: 100, Cigar: "1M", Count: 1}) })
}

func TestAddTrackAlignment(t *testing.T) {
	a := coverage.New(1, 5)
	a.GrowToIntervalSize()
	a.GrowDualTrackChannels()
	p := diff.Placement{Start: 2, Cigar: "3M", Class: diff.Common, Count: 1}
	require.NoError(t, a.AddTrackAlignment(p, coverage.Track2))
	assert.Equal(t, []int32{0, 1, 1, 1, 0}, a.Channel(coverage.Track2Fwd))
	assert.Equal(t, []int32{0, 0, 0, 0, 0}, a.Channel(coverage.Track1Fwd))
	assert.Equal(t, coverage.Track1Rev, coverage.TrackChannel(coverage.Track1, pileup.StrandRev))
	assert.Equal(t, coverage.CommonRev, coverage.ClassChannel(diff.Common, pileup.StrandRev))
}
