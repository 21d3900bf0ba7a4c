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
package gap

import (
	"encoding/json"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/readview/pileup"
	"github.com/grailbio/readview/pileup/diff"
)

type entry struct {
	pos pileup.PosType
	agg *Aggregator
}

// Compare compares two entries by position, for use in llrb.
func (e entry) Compare(c llrb.Comparable) int {
	return int(e.pos) - int(c.(entry).pos)
}

// Table maps reference positions to the Aggregator for the insertions before
// that position, iterable in position order.
type Table struct {
	tree llrb.Tree
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Add tallies the insertion d under its position.
func (t *Table) Add(d diff.Diff) {
	t.At(d.Pos).IncCountFor(d)
}

// At returns the aggregator for pos, creating it if needed.
func (t *Table) At(pos pileup.PosType) *Aggregator {
	if c := t.tree.Get(entry{pos: pos}); c != nil {
		return c.(entry).agg
	}
	e := entry{pos: pos, agg: &Aggregator{}}
	t.tree.Insert(e)
	return e.agg
}

// Get returns the aggregator for pos, or nil if no insertion was recorded
// there.
func (t *Table) Get(pos pileup.PosType) *Aggregator {
	if c := t.tree.Get(entry{pos: pos}); c != nil {
		return c.(entry).agg
	}
	return nil
}

// Len returns the number of positions with at least one insertion.
func (t *Table) Len() int {
	return t.tree.Len()
}

// Do calls fn for every position in increasing order, stopping early if fn
// returns true.
func (t *Table) Do(fn func(pos pileup.PosType, a *Aggregator) (done bool)) {
	t.tree.Do(func(c llrb.Comparable) bool {
		e := c.(entry)
		return fn(e.pos, e.agg)
	})
}

// DoRange is like Do, restricted to positions in [from, to).
func (t *Table) DoRange(from, to pileup.PosType, fn func(pos pileup.PosType, a *Aggregator) (done bool)) {
	t.tree.DoRange(func(c llrb.Comparable) bool {
		e := c.(entry)
		return fn(e.pos, e.agg)
	}, entry{pos: from}, entry{pos: to})
}

type jsonOrder struct {
	Order int              `json:"order"`
	Count map[string]int64 `json:"count"`
}

type jsonPosition struct {
	Pos    pileup.PosType `json:"pos"`
	Orders []jsonOrder    `json:"orders"`
}

// MarshalJSON renders the table as a position-ordered list of per-order base
// counts.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := make([]jsonPosition, 0, t.Len())
	t.Do(func(pos pileup.PosType, a *Aggregator) bool {
		p := jsonPosition{Pos: pos}
		for order, counts := range a.GapOrderCount() {
			o := jsonOrder{Order: order, Count: make(map[string]int64)}
			for base, v := range counts {
				if v[Count] > 0 {
					o.Count[string(pileup.EnumToASCIITable[base])] = v[Count]
				}
			}
			p.Orders = append(p.Orders, o)
		}
		out = append(out, p)
		return false
	})
	return json.Marshal(out)
}
