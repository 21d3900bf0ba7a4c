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
package source

import (
	"context"

	"github.com/grailbio/base/intervalmap"
	"github.com/grailbio/readview/pileup/diff"
)

// Memory is a Source over a fixed set of records.  It is read-only after
// construction.
type Memory struct {
	refs map[string]*intervalmap.T
}

// NewMemory indexes recs.  Every record must pass diff.Record.Validate.
func NewMemory(recs []*diff.Record) (*Memory, error) {
	entries := make(map[string][]intervalmap.Entry)
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		entries[r.RefName] = append(entries[r.RefName], intervalmap.Entry{
			Interval: intervalmap.Interval{
				Start: int64(r.Start),
				Limit: int64(r.Stop) + 1,
			},
			Data: r,
		})
	}
	m := &Memory{refs: make(map[string]*intervalmap.T, len(entries))}
	for ref, e := range entries {
		m.refs[ref] = intervalmap.New(e)
	}
	return m, nil
}

// Alignments implements Source.  Records are returned as copies, so callers
// may classify them without affecting other queries.
func (m *Memory) Alignments(_ context.Context, refName string, left, right PosType) ([]*diff.Record, error) {
	tree, ok := m.refs[refName]
	if !ok || right < left {
		return nil, nil
	}
	var hits []*intervalmap.Entry
	tree.Get(intervalmap.Interval{Start: int64(left), Limit: int64(right) + 1}, &hits)
	recs := make([]*diff.Record, len(hits))
	for i, e := range hits {
		r := *e.Data.(*diff.Record)
		recs[i] = &r
	}
	sortRecords(recs)
	return recs, nil
}
