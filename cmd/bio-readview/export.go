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
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/readview/interval"
	"github.com/grailbio/readview/pileup/diff"
	"github.com/grailbio/readview/track"
)

type exportOpts struct {
	category track.Category
	classes  diff.ClassSet
	// format is one of "tsv", "tsv-bgz" and "rio".  Mapping queries are always
	// written as JSON.
	format    string
	outPrefix string
	withDiffs bool
	// trackIDs restricts a dual connector to some of its tracks.
	trackIDs    []int
	parallelism int
	timeout     time.Duration
}

type outcome struct {
	res track.Result
	err error
}

// batchReceiver hands the outcome of a request back to the submitting
// goroutine.
type batchReceiver chan outcome

func (r batchReceiver) Receive(res track.Result) { r <- outcome{res: res} }

func (r batchReceiver) Superseded(req *track.IntervalRequest) {
	r <- outcome{err: errors.E(errors.Precondition, fmt.Sprintf("request %v superseded", req))}
}

func (r batchReceiver) Failed(req *track.IntervalRequest, err error) {
	r <- outcome{err: errors.E(err, fmt.Sprintf("request %v", req))}
}

func outputPath(prefix string, e interval.Entry, suffix string) string {
	return fmt.Sprintf("%s.%s_%d_%d.%s", prefix, e.RefName, e.Left(), e.Right(), suffix)
}

// writeFile creates path and passes its writer to fn, bgzf-compressing the
// output if bgzip is set.
func writeFile(ctx context.Context, path string, bgzip bool, parallelism int, fn func(io.Writer) error) (err error) {
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, dst, &err)
	if !bgzip {
		return fn(dst.Writer(ctx))
	}
	bgzfWriter := bgzf.NewWriter(dst.Writer(ctx), parallelism)
	if err = fn(bgzfWriter); err != nil {
		return
	}
	return bgzfWriter.Close()
}

// export runs one query per entry through conn, one at a time so that no
// request supersedes another, and writes the results next to outPrefix.
func export(ctx context.Context, conn *track.Connector, entries []interval.Entry, opts exportOpts) error {
	recv := make(batchReceiver, 1)
	var timeout <-chan time.Time
	for _, e := range entries {
		req := track.NewIntervalRequest(e, opts.classes, recv)
		req.WithDiffs = opts.withDiffs
		req.TrackIDs = opts.trackIDs
		if err := conn.AddRequest(opts.category, req); err != nil {
			return err
		}
		if opts.timeout > 0 {
			timeout = time.After(opts.timeout)
		}
		var o outcome
		select {
		case o = <-recv:
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errors.E(errors.Timeout, fmt.Sprintf("request %v: no result after %v", req, opts.timeout))
		}
		if o.err != nil {
			return o.err
		}
		if err := writeResult(ctx, e, o.res, opts); err != nil {
			return err
		}
		log.Printf("%v: wrote %v", e, opts.category)
	}
	return conn.WaitIdle(ctx)
}

func writeResult(ctx context.Context, e interval.Entry, res track.Result, opts exportOpts) error {
	switch r := res.(type) {
	case *track.MappingResult:
		return writeFile(ctx, outputPath(opts.outPrefix, e, "mappings.json"), false, 1, func(w io.Writer) error {
			return json.NewEncoder(w).Encode(r)
		})
	case *track.CoverageResult:
		switch opts.format {
		case "rio":
			return writeFile(ctx, outputPath(opts.outPrefix, e, "coverage.rio"), false, 1, func(w io.Writer) error {
				return track.WriteCoverageRio(w, r)
			})
		case "tsv", "tsv-bgz":
			bgzip := opts.format == "tsv-bgz"
			suffix := "tsv"
			if bgzip {
				suffix = "tsv.gz"
			}
			if err := writeFile(ctx, outputPath(opts.outPrefix, e, "coverage."+suffix), bgzip, opts.parallelism, func(w io.Writer) error {
				return track.WriteCoverageTSV(w, r)
			}); err != nil {
				return err
			}
			if !opts.withDiffs && opts.category != track.CoverageAnalysis {
				return nil
			}
			return writeFile(ctx, outputPath(opts.outPrefix, e, "diffs."+suffix), bgzip, opts.parallelism, func(w io.Writer) error {
				return track.WriteDiffsTSV(w, r)
			})
		}
		return errors.E(errors.Invalid, fmt.Sprintf("unknown output format %q", opts.format))
	}
	log.Panicf("unexpected result type %T", res)
	return nil
}
