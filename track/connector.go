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

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/sync/multierror"
	"github.com/grailbio/readview/pileup/coverage"
	"github.com/grailbio/readview/requestqueue"
	"github.com/grailbio/readview/source"
)

// handler adapts a processing function to requestqueue.Handler, delivering
// results and notifications to the request's Receiver.
type handler[Res Result] struct {
	process func(ctx context.Context, req *IntervalRequest) (Res, error)
}

func (h handler[Res]) Process(ctx context.Context, req *IntervalRequest) (Res, error) {
	return h.process(ctx, req)
}

func (h handler[Res]) Dispatch(req *IntervalRequest, res Res) {
	if req.Receiver != nil {
		req.Receiver.Receive(res)
	}
}

func (h handler[Res]) Superseded(req *IntervalRequest) {
	if n, ok := req.Receiver.(Notifiable); ok {
		n.Superseded(req)
	}
}

func (h handler[Res]) Failed(req *IntervalRequest, err error) {
	if n, ok := req.Receiver.(Notifiable); ok {
		n.Failed(req, err)
	}
}

type (
	coverageQueue = requestqueue.Queue[*IntervalRequest, *CoverageResult]
	mappingQueue  = requestqueue.Queue[*IntervalRequest, *MappingResult]
)

// Connector serves the queries on one track, or on a pair of tracks.  Each
// query category has its own queue and worker, so a slow analysis query
// never holds up display queries.
type Connector struct {
	name    string
	opts    Opts
	sources []trackSource

	coverage, coverageAnalysis *coverageQueue
	mapping, mappingAnalysis   *mappingQueue
}

// NewConnector creates a connector for the track with the given id, reading
// alignments from src.
func NewConnector(ctx context.Context, trackID int, src source.Source, opts Opts) *Connector {
	return newConnector(ctx, fmt.Sprintf("track%d", trackID), []trackSource{{id: trackID, src: src}}, opts)
}

// NewDualConnector creates a connector comparing two tracks.  Coverage
// results fill the Track1 channels from src1 and the Track2 channels from
// src2, on top of the classification channels both feed.
func NewDualConnector(ctx context.Context, id1 int, src1 source.Source, id2 int, src2 source.Source, opts Opts) *Connector {
	return newConnector(ctx, fmt.Sprintf("track%d+%d", id1, id2), []trackSource{
		{id: id1, src: src1, track: coverage.Track1},
		{id: id2, src: src2, track: coverage.Track2},
	}, opts)
}

func newConnector(ctx context.Context, name string, sources []trackSource, opts Opts) *Connector {
	c := &Connector{name: name, opts: opts, sources: sources}
	coverageHandler := func(withDiffs bool) handler[*CoverageResult] {
		return handler[*CoverageResult]{process: func(ctx context.Context, req *IntervalRequest) (*CoverageResult, error) {
			return processCoverage(ctx, c.sources, req, c.opts, withDiffs || req.WithDiffs)
		}}
	}
	mappingHandler := func(withDiffs bool) handler[*MappingResult] {
		return handler[*MappingResult]{process: func(ctx context.Context, req *IntervalRequest) (*MappingResult, error) {
			return processMappings(ctx, c.sources, req, c.opts, withDiffs || req.WithDiffs)
		}}
	}
	queueName := func(cat Category) string { return name + "/" + cat.String() }
	c.coverage = requestqueue.New[*IntervalRequest, *CoverageResult](ctx, queueName(Coverage), coverageHandler(false))
	c.coverageAnalysis = requestqueue.New[*IntervalRequest, *CoverageResult](ctx, queueName(CoverageAnalysis), coverageHandler(true))
	c.mapping = requestqueue.New[*IntervalRequest, *MappingResult](ctx, queueName(Mapping), mappingHandler(false))
	c.mappingAnalysis = requestqueue.New[*IntervalRequest, *MappingResult](ctx, queueName(MappingAnalysis), mappingHandler(true))
	log.Debug.Printf("connector %s: started", name)
	return c
}

// Name identifies the connector in logs and metrics.
func (c *Connector) Name() string { return c.name }

// TrackIDs returns the ids of the connector's tracks.
func (c *Connector) TrackIDs() []int {
	ids := make([]int, len(c.sources))
	for i, ts := range c.sources {
		ids[i] = ts.id
	}
	return ids
}

// AddCoverageRequest submits req to the coverage queue.
func (c *Connector) AddCoverageRequest(req *IntervalRequest) error {
	return submit(c.coverage, req, c.opts)
}

// AddCoverageAnalysisRequest submits req to the coverage analysis queue.
func (c *Connector) AddCoverageAnalysisRequest(req *IntervalRequest) error {
	return submit(c.coverageAnalysis, req, c.opts)
}

// AddMappingRequest submits req to the mapping queue.
func (c *Connector) AddMappingRequest(req *IntervalRequest) error {
	return submit(c.mapping, req, c.opts)
}

// AddMappingAnalysisRequest submits req to the mapping analysis queue.
func (c *Connector) AddMappingAnalysisRequest(req *IntervalRequest) error {
	return submit(c.mappingAnalysis, req, c.opts)
}

// AddRequest submits req to the queue of the given category.
func (c *Connector) AddRequest(cat Category, req *IntervalRequest) error {
	switch cat {
	case Coverage:
		return c.AddCoverageRequest(req)
	case CoverageAnalysis:
		return c.AddCoverageAnalysisRequest(req)
	case Mapping:
		return c.AddMappingRequest(req)
	case MappingAnalysis:
		return c.AddMappingAnalysisRequest(req)
	}
	log.Panicf("connector %s: invalid category %v", c.name, cat)
	return nil
}

// submit rejects malformed requests up front, so that they never replace a
// valid pending one.
func submit[Res any](q *requestqueue.Queue[*IntervalRequest, Res], req *IntervalRequest, opts Opts) error {
	if err := validate(req, opts); err != nil {
		return err
	}
	return q.Submit(req)
}

// State reports the state of the queue of the given category.
func (c *Connector) State(cat Category) requestqueue.State {
	switch cat {
	case Coverage:
		return c.coverage.State()
	case CoverageAnalysis:
		return c.coverageAnalysis.State()
	case Mapping:
		return c.mapping.State()
	case MappingAnalysis:
		return c.mappingAnalysis.State()
	}
	log.Panicf("connector %s: invalid category %v", c.name, cat)
	return requestqueue.Idle
}

// WaitIdle blocks until every queue is idle.
func (c *Connector) WaitIdle(ctx context.Context) error {
	for _, wait := range []func(context.Context) error{
		c.coverage.WaitIdle, c.coverageAnalysis.WaitIdle, c.mapping.WaitIdle, c.mappingAnalysis.WaitIdle,
	} {
		if err := wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops all queues, letting in-flight requests finish.
func (c *Connector) Close() error {
	errs := multierror.NewMultiError(4)
	errs.Add(c.coverage.Close())
	errs.Add(c.coverageAnalysis.Close())
	errs.Add(c.mapping.Close())
	errs.Add(c.mappingAnalysis.Close())
	log.Debug.Printf("connector %s: closed", c.name)
	return errs.Err()
}
