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
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/sync/multierror"
	"github.com/grailbio/base/unsafe"
	"github.com/grailbio/readview/source"
)

// Opener opens the alignment source of a track.  If the source implements
// io.Closer, the registry closes it along with the connector that uses it.
type Opener func(ctx context.Context, trackID int) (source.Source, error)

const numRegistryShards = 64

type registryEntry struct {
	conn    *Connector
	sources []source.Source
}

type registryShard struct {
	mu    sync.Mutex
	conns map[string]*registryEntry
}

// Registry owns the connectors of a process, creating them on first use.  It
// is safe for concurrent use.
type Registry struct {
	ctx    context.Context
	open   Opener
	opts   Opts
	shards [numRegistryShards]registryShard
}

// NewRegistry creates an empty registry.  ctx is the lifetime of every
// connector it creates.
func NewRegistry(ctx context.Context, open Opener, opts Opts) *Registry {
	r := &Registry{ctx: ctx, open: open, opts: opts}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]*registryEntry)
	}
	return r
}

func singleKey(id int) string { return strconv.Itoa(id) }
func dualKey(id1, id2 int) string { return fmt.Sprintf("%d+%d", id1, id2) }

func (r *Registry) shard(key string) *registryShard {
	h := seahash.Sum64(unsafe.StringToBytes(key))
	return &r.shards[int(h%uint64(numRegistryShards))]
}

// Connector returns the connector for trackID, opening the track if needed.
func (r *Registry) Connector(trackID int) (*Connector, error) {
	return r.get(singleKey(trackID), []int{trackID}, func(srcs []source.Source) *Connector {
		return NewConnector(r.ctx, trackID, srcs[0], r.opts)
	})
}

// DualConnector returns the connector comparing id1 with id2.  The pair is
// ordered: (1, 2) and (2, 1) are different connectors, with the channels
// swapped.
func (r *Registry) DualConnector(id1, id2 int) (*Connector, error) {
	if id1 == id2 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("cannot compare track %d with itself", id1))
	}
	return r.get(dualKey(id1, id2), []int{id1, id2}, func(srcs []source.Source) *Connector {
		return NewDualConnector(r.ctx, id1, srcs[0], id2, srcs[1], r.opts)
	})
}

func (r *Registry) get(key string, ids []int, create func([]source.Source) *Connector) (*Connector, error) {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.conns[key]; ok {
		return e.conn, nil
	}
	e := &registryEntry{}
	for _, id := range ids {
		src, err := r.open(r.ctx, id)
		if err != nil {
			closeSources(e.sources) // nolint: errcheck
			return nil, errors.E(err, fmt.Sprintf("open track %d", id))
		}
		e.sources = append(e.sources, src)
	}
	e.conn = create(e.sources)
	s.conns[key] = e
	log.Printf("registry: opened connector %s", e.conn.Name())
	return e.conn, nil
}

func closeSources(srcs []source.Source) error {
	errs := multierror.NewMultiError(len(srcs) + 1)
	for _, src := range srcs {
		if c, ok := src.(io.Closer); ok {
			errs.Add(c.Close())
		}
	}
	return errs.Err()
}

func (e *registryEntry) close() error {
	errs := multierror.NewMultiError(2)
	errs.Add(e.conn.Close())
	errs.Add(closeSources(e.sources))
	return errs.Err()
}

// Remove closes and forgets every connector that reads trackID.
func (r *Registry) Remove(trackID int) error {
	return r.removeIf(func(e *registryEntry) bool {
		for _, id := range e.conn.TrackIDs() {
			if id == trackID {
				return true
			}
		}
		return false
	})
}

// Len returns the number of open connectors.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.conns)
		s.mu.Unlock()
	}
	return n
}

// Close closes every connector.  The registry remains usable; later lookups
// open new connectors.
func (r *Registry) Close() error {
	return r.removeIf(func(*registryEntry) bool { return true })
}

func (r *Registry) removeIf(pred func(*registryEntry) bool) error {
	var removed []*registryEntry
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for key, e := range s.conns {
			if pred(e) {
				removed = append(removed, e)
				delete(s.conns, key)
			}
		}
		s.mu.Unlock()
	}
	errs := multierror.NewMultiError(len(removed) + 1)
	for _, e := range removed {
		errs.Add(e.close())
	}
	return errs.Err()
}
