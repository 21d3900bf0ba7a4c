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

// Package source provides the alignment records that coverage and mapping
// queries run over.
package source

import (
	"context"
	"sort"

	"github.com/grailbio/readview/pileup"
	"github.com/grailbio/readview/pileup/diff"
)

// PosType is the integer type used to represent genomic positions.
type PosType = pileup.PosType

// Source produces alignment records.  Implementations must be safe for
// concurrent use.
type Source interface {
	// Alignments returns the records on refName whose reference span overlaps
	// the 1-based closed interval [left, right], ordered by start.  Each
	// record's RefSeq is filled in.  The caller owns the returned records
	// and may modify them.
	Alignments(ctx context.Context, refName string, left, right PosType) ([]*diff.Record, error)
}

func sortRecords(recs []*diff.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Start != recs[j].Start {
			return recs[i].Start < recs[j].Start
		}
		return recs[i].Name < recs[j].Name
	})
}
