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

// Package gap aggregates insertions ("reference gaps") by position and
// insertion order.
package gap

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/readview/pileup"
	"github.com/grailbio/readview/pileup/diff"
)

// Value indexes the per-(order, base) statistics.
type Value int

const (
	// Count is the number of inserted bases.
	Count Value = iota
	// BaseQualSum is the sum of known base qualities.
	BaseQualSum
	// MapQSum is the sum of known mapping qualities.
	MapQSum
	// NValue is the number of Value kinds.
	NValue
)

// OrderCounts holds the statistics for one insertion order, indexed by
// base enum (pileup.BaseA..pileup.BaseX) and Value.
type OrderCounts [pileup.NBaseEnum][NValue]int64

// Aggregator tallies the insertions seen at one reference position.  Entry i
// of the order-indexed list describes the i-th inserted base before the
// position.  The zero value is ready to use.  Aggregators are write-only and
// must not be shared between goroutines.
type Aggregator struct {
	orders []OrderCounts
}

// IncCountFor adds the insertion d.  Bases of reverse-strand insertions are
// complemented back to reference orientation before they are tallied.
// Unknown qualities are counted but do not contribute to the sums.
func (a *Aggregator) IncCountFor(d diff.Diff) {
	if d.Kind != diff.Insertion {
		log.Panicf("gap.IncCountFor: %v is not an insertion", d)
	}
	if d.Order < 0 {
		log.Panicf("gap.IncCountFor: negative order in %v", d)
	}
	for int(d.Order) >= len(a.orders) {
		a.orders = append(a.orders, OrderCounts{})
	}
	base := d.Base
	if d.Reverse {
		base = pileup.Complement(base)
	}
	slot := &a.orders[d.Order][pileup.ASCIIToEnumTable[base]]
	slot[Count] += int64(d.Count)
	if d.BaseQual != diff.UnknownQual {
		slot[BaseQualSum] += int64(d.BaseQual) * int64(d.Count)
	}
	if d.MapQ != diff.UnknownQual {
		slot[MapQSum] += int64(d.MapQ) * int64(d.Count)
	}
}

// GapOrderCount returns the order-indexed statistics.  The caller must not
// modify the result.
func (a *Aggregator) GapOrderCount() []OrderCounts {
	return a.orders
}

// Len returns the number of insertion orders seen.
func (a *Aggregator) Len() int {
	return len(a.orders)
}

func (a *Aggregator) get(order int, base byte, v Value) int64 {
	if order < 0 || order >= len(a.orders) {
		return 0
	}
	return a.orders[order][pileup.ASCIIToEnumTable[base]][v]
}

// Count returns the number of inserted bases with the given order and
// (reference-orientation) base.
func (a *Aggregator) Count(order int, base byte) int64 {
	return a.get(order, base, Count)
}

// BaseQualSum returns the sum of the known base qualities for (order, base).
func (a *Aggregator) BaseQualSum(order int, base byte) int64 {
	return a.get(order, base, BaseQualSum)
}

// MapQSum returns the sum of the known mapping qualities for (order, base).
func (a *Aggregator) MapQSum(order int, base byte) int64 {
	return a.get(order, base, MapQSum)
}

// Total returns the number of inserted bases with the given order, over all
// bases.
func (a *Aggregator) Total(order int) int64 {
	var n int64
	if order < 0 || order >= len(a.orders) {
		return 0
	}
	for _, v := range a.orders[order] {
		n += v[Count]
	}
	return n
}
