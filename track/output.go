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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/readview/pileup"
	"github.com/grailbio/readview/pileup/coverage"
	"github.com/grailbio/readview/pileup/diff"
)

func init() {
	recordiozstd.Init()
}

// WriteCoverageTSV writes one line per position of res's interval, with a
// column per allocated coverage channel and the number of inserted bases
// before the position.
func WriteCoverageTSV(w io.Writer, res *CoverageResult) error {
	acc := res.Coverage
	var channels []coverage.Channel
	for c := coverage.Channel(0); c < coverage.NChannel; c++ {
		if len(acc.Channel(c)) > 0 {
			channels = append(channels, c)
		}
	}
	tw := tsv.NewWriter(w)
	tw.WriteString("#CHROM")
	tw.WriteString("POS")
	for _, c := range channels {
		tw.WriteString(c.String())
	}
	tw.WriteString("INS")
	if err := tw.EndLine(); err != nil {
		return err
	}
	refName := res.Request.RefName
	for i := 0; i < acc.Len(); i++ {
		pos := acc.Left() + PosType(i)
		tw.WriteString(refName)
		tw.WriteUint32(uint32(pos))
		for _, c := range channels {
			tw.WriteInt64(int64(acc.Channel(c)[i]))
		}
		var ins int64
		if a := res.GapCounts.Get(pos); a != nil {
			for order := 0; order < a.Len(); order++ {
				ins += a.Total(order)
			}
		}
		tw.WriteInt64(ins)
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteDiffsTSV writes one line per diff and gap of res, in position order.
func WriteDiffsTSV(w io.Writer, res *CoverageResult) error {
	all := make([]diff.Diff, 0, len(res.Diffs)+len(res.Gaps))
	all = append(all, res.Diffs...)
	all = append(all, res.Gaps...)
	sortDiffs(all)

	tw := tsv.NewWriter(w)
	for _, col := range []string{"#CHROM", "POS", "KIND", "ORDER", "BASE", "STRAND", "COUNT", "BASEQ", "MAPQ"} {
		tw.WriteString(col)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	qual := func(q int16) string {
		if q == diff.UnknownQual {
			return "."
		}
		return strconv.Itoa(int(q))
	}
	for _, d := range all {
		tw.WriteString(res.Request.RefName)
		tw.WriteUint32(uint32(d.Pos))
		tw.WriteString(d.Kind.String())
		tw.WriteUint32(uint32(d.Order))
		tw.WriteByte(d.Base)
		tw.WriteByte(pileup.StrandTypeToASCIITable[pileup.StrandOf(d.Reverse)])
		tw.WriteUint32(uint32(d.Count))
		tw.WriteString(qual(d.BaseQual))
		tw.WriteString(qual(d.MapQ))
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

const (
	rioRefNameHeader = "RefName"
	rioLeftHeader    = "Left"
	rioRightHeader   = "Right"
	rioHighestHeader = "HighestCoverage"
	rioDualHeader    = "DualTrack"
	rioVersion       = 1
	rioPileSize      = 4 + 4*int(coverage.NChannel)
)

// CoveragePile is the coverage of every channel at one position.
type CoveragePile struct {
	Pos    uint32
	Counts [coverage.NChannel]int32
}

func marshalCoveragePile(scratch []byte, p interface{}) ([]byte, error) {
	t := scratch
	if len(t) < rioPileSize {
		t = make([]byte, rioPileSize)
	}
	t = t[:rioPileSize]
	pile := p.(*CoveragePile)
	binary.LittleEndian.PutUint32(t[:4], pile.Pos)
	for c, n := range pile.Counts {
		binary.LittleEndian.PutUint32(t[4+4*c:8+4*c], uint32(n))
	}
	return t, nil
}

func unmarshalCoveragePile(in []byte) (interface{}, error) {
	if len(in) != rioPileSize {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("coverage record has %d bytes, want %d", len(in), rioPileSize))
	}
	pile := &CoveragePile{Pos: binary.LittleEndian.Uint32(in[:4])}
	for c := range pile.Counts {
		pile.Counts[c] = int32(binary.LittleEndian.Uint32(in[4+4*c : 8+4*c]))
	}
	return pile, nil
}

func coverageRioTrailer(n int) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, [2]int64{rioVersion, int64(n)}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WriteCoverageRio writes the coverage of res as zstd-compressed recordio,
// one record per position.
func WriteCoverageRio(out io.Writer, res *CoverageResult) error {
	acc := res.Coverage
	w := recordio.NewWriter(out, recordio.WriterOpts{
		Marshal:      marshalCoveragePile,
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(rioRefNameHeader, res.Request.RefName)
	w.AddHeader(rioLeftHeader, int64(acc.Left()))
	w.AddHeader(rioRightHeader, int64(acc.Right()))
	w.AddHeader(rioHighestHeader, int64(acc.HighestCoverage()))
	w.AddHeader(rioDualHeader, acc.HasDualTrackChannels())
	w.AddHeader(recordio.KeyTrailer, true)
	for i := 0; i < acc.Len(); i++ {
		pile := &CoveragePile{Pos: uint32(acc.Left()) + uint32(i)}
		for c := range pile.Counts {
			if ch := acc.Channel(coverage.Channel(c)); len(ch) > 0 {
				pile.Counts[c] = ch[i]
			}
		}
		w.Append(pile)
	}
	w.SetTrailer(coverageRioTrailer(acc.Len()))
	return w.Finish()
}

func headerInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	}
	return -1
}

// ReadCoverageRio reads a file written by WriteCoverageRio back into an
// accumulator.
func ReadCoverageRio(rs io.ReadSeeker) (acc *coverage.Accumulator, refName string, err error) {
	sc := recordio.NewScanner(rs, recordio.ScannerOpts{Unmarshal: unmarshalCoveragePile})
	var (
		left, right, highest int64
		dual                 bool
	)
	for _, kv := range sc.Header() {
		switch kv.Key {
		case rioRefNameHeader:
			refName = kv.Value.(string)
		case rioLeftHeader:
			left = headerInt(kv.Value)
		case rioRightHeader:
			right = headerInt(kv.Value)
		case rioHighestHeader:
			highest = headerInt(kv.Value)
		case rioDualHeader:
			dual = kv.Value.(bool)
		}
	}
	if refName == "" || left < 1 || left > right {
		return nil, "", errors.E(errors.Integrity, "coverage file has no valid interval header")
	}
	acc = coverage.New(PosType(left), PosType(right))
	acc.GrowToIntervalSize()
	if dual {
		acc.GrowDualTrackChannels()
	}
	acc.SetHighestCoverage(int(highest))
	nChannel := coverage.NClassChannel
	if dual {
		nChannel = coverage.NChannel
	}
	for sc.Scan() {
		pile := sc.Get().(*CoveragePile)
		pos := PosType(pile.Pos)
		if !acc.CoversBounds(pos, pos) {
			return nil, "", errors.E(errors.Integrity, fmt.Sprintf("position %d outside [%d, %d]", pos, left, right))
		}
		for c := coverage.Channel(0); c < nChannel; c++ {
			acc.Set(c, pos, pile.Counts[c])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, "", err
	}
	if n := len(sc.Trailer()); n != 0 {
		var t [2]int64
		if err := binary.Read(bytes.NewReader(sc.Trailer()), binary.LittleEndian, &t); err != nil {
			return nil, "", err
		}
		if t[0] != rioVersion {
			return nil, "", errors.E(errors.Integrity, fmt.Sprintf("unrecognized coverage file version %d", t[0]))
		}
		if t[1] != int64(acc.Len()) {
			return nil, "", errors.E(errors.Integrity, fmt.Sprintf("coverage file holds %d positions, want %d", t[1], acc.Len()))
		}
	}
	return acc, refName, nil
}
