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

// Package pileup contains the base and strand definitions shared by the
// alignment decoder and the per-position aggregators.
package pileup

import (
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/readview/interval"
)

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = interval.PosTypeMax

// These constants are the natural value for A/C/G/T in a packed 2-bit
// representation, with everything else (N, IUPAC ambiguity codes, the gap
// marker) collapsed into BaseX.
const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

const (
	// NBase is the number of regular base types.
	NBase = 4
	// NBaseEnum counts BaseX as well as the regular base types.
	NBaseEnum = 5
)

// GapBase is the base recorded for a reference position that is deleted in
// the read.
const GapBase byte = '-'

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// ASCIIToEnumTable is the ASCII -> A/C/G/T/X mapping.  Lower-case bases are
// recognized.
var ASCIIToEnumTable [256]byte

// UpperTable maps every byte to its upper-case version.
var UpperTable [256]byte

// ComplementTable maps an upper-case ASCII base to its complement.  Bases
// without a complement (N, the gap marker, anything unexpected) map to
// themselves.
var ComplementTable [256]byte

func init() {
	for i := range ASCIIToEnumTable {
		ASCIIToEnumTable[i] = BaseX
		c := byte(i)
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		UpperTable[i] = c
		ComplementTable[i] = byte(i)
	}
	for enum, c := range EnumToASCIITable[:NBase] {
		ASCIIToEnumTable[c] = byte(enum)
		ASCIIToEnumTable[c+('a'-'A')] = byte(enum)
	}
	for _, pair := range [...][2]byte{{'A', 'T'}, {'C', 'G'}, {'R', 'Y'}, {'K', 'M'}, {'B', 'V'}, {'D', 'H'}} {
		ComplementTable[pair[0]] = pair[1]
		ComplementTable[pair[1]] = pair[0]
	}
}

// Upper returns the upper-case version of an ASCII base.
func Upper(c byte) byte {
	return UpperTable[c]
}

// Complement returns the DNA complement of an ASCII base, upper-casing it
// first.
func Complement(c byte) byte {
	return ComplementTable[UpperTable[c]]
}

// StrandType describes which strand an alignment is on.
type StrandType int

const (
	// StrandFwd means the read aligned to the forward strand.
	StrandFwd StrandType = iota
	// StrandRev means the read aligned as a reverse complement.
	StrandRev
	// NStrand is the number of strands.
	NStrand
)

// StrandTypeToASCIITable is the StrandType -> ASCII mapping.
var StrandTypeToASCIITable = [...]byte{'+', '-'}

// StrandOf converts a reverse-strand flag to a StrandType.
func StrandOf(reverse bool) StrandType {
	if reverse {
		return StrandRev
	}
	return StrandFwd
}

// GetStrand returns the strand a single read is aligned to.
func GetStrand(samr *sam.Record) StrandType {
	return StrandOf(samr.Flags&sam.Reverse != 0)
}
