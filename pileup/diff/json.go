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
package diff

import (
	"encoding/json"

	"github.com/grailbio/readview/pileup"
)

// MarshalText renders the classification name.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// MarshalText renders the kind name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type jsonDiff struct {
	Kind     Kind    `json:"kind"`
	Pos      PosType `json:"pos"`
	Order    int32   `json:"order,omitempty"`
	Base     string  `json:"base"`
	Strand   string  `json:"strand"`
	Count    int32   `json:"count"`
	BaseQual *int16  `json:"baseQual,omitempty"`
	MapQ     *int16  `json:"mapq,omitempty"`
}

// MarshalJSON renders bases and strands as characters, and omits unknown
// qualities.
func (d Diff) MarshalJSON() ([]byte, error) {
	j := jsonDiff{
		Kind:   d.Kind,
		Pos:    d.Pos,
		Order:  d.Order,
		Base:   string(d.Base),
		Strand: string(pileup.StrandTypeToASCIITable[pileup.StrandOf(d.Reverse)]),
		Count:  d.Count,
	}
	if d.BaseQual != UnknownQual {
		q := d.BaseQual
		j.BaseQual = &q
	}
	if d.MapQ != UnknownQual {
		q := d.MapQ
		j.MapQ = &q
	}
	return json.Marshal(j)
}
