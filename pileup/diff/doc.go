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

/*
Package diff decodes single alignments against the reference.

Given an alignment's CIGAR string, its read sequence, and the slice of
reference it was aligned to, Decode walks the CIGAR operations with
independent read and reference cursors, and reports every position where the
read disagrees with the reference:

  - substitutions (M/X runs where the read base differs),
  - deletions (D runs; the read has a gap at that reference position), and
  - insertions (I runs; read bases with no reference position).  Insertions
    are reported at the reference position following them, and numbered by
    "order" when several are stacked at one position.

All three are represented by the same Diff record, tagged with a Kind.
Emitted bases are upper case and, for reverse-strand alignments, complemented,
so that the consumer can aggregate across strands.

Decoding has no shared state; it is safe to decode different records from
many goroutines at once.
*/
package diff
