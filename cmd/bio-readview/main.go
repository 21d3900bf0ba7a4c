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
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/readview/encoding/fasta"
	"github.com/grailbio/readview/interval"
	"github.com/grailbio/readview/pileup/diff"
	"github.com/grailbio/readview/server"
	"github.com/grailbio/readview/source"
	"github.com/grailbio/readview/track"
)

var (
	bedPath      = flag.String("bed", "", "Input BED path; this xor -region required in batch mode")
	region       = flag.String("region", "", "Query region, formatted as <contig ID>:<1-based first pos>-<last pos> or <contig ID>:<1-based pos>; this xor -bed required in batch mode")
	bamIndexPath = flag.String("index", "", "Index of the first BAM. Defaults to bampath + .bai")
	category     = flag.String("category", track.Coverage.String(), "Query category; 'coverage', 'coverage-analysis', 'mappings' and 'mappings-analysis' supported")
	classes      = flag.String("classes", "", "Comma-separated alignment classifications to include (PERFECT, BEST_MATCH, COMMON); default all")
	diffs        = flag.Bool("diffs", false, "Also report per-read mismatches and insertions")
	format       = flag.String("format", "tsv", "Coverage output format; 'tsv', 'tsv-bgz' and 'rio' supported")
	onlyTrack    = flag.Int("track", 0, "With two BAMs, restrict the query to track 1 or 2; 0 = both")
	mapq         = flag.Int("mapq", source.DefaultBAMOpts.MinMapQ, "Reads with MAPQ below this level are skipped")
	maxInterval  = flag.Int("max-interval", track.DefaultOpts.MaxInterval, "Longest region a single query may span")
	outPrefix    = flag.String("out", "bio-readview", "Output path prefix")
	parallelism  = flag.Int("parallelism", 0, "Maximum number of goroutines decoding one query; 0 = runtime.NumCPU()")
	serve        = flag.String("serve", "", "If set, serve queries over HTTP on this address instead of running a batch")
	timeout      = flag.Duration("timeout", 10*time.Minute, "Upper bound on the time taken by one query")
)

func bioReadviewUsage() {
	fmt.Printf("Usage: %s [OPTIONS] fapath bampath [bampath2]\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// opener returns a track.Opener over bamPaths; track i reads bamPaths[i-1].
func opener(ref fasta.Fasta, bamPaths []string) track.Opener {
	return func(ctx context.Context, id int) (source.Source, error) {
		if id < 1 || id > len(bamPaths) {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("track %d: only %d BAM files given", id, len(bamPaths)))
		}
		opts := source.DefaultBAMOpts
		opts.TrackID = id
		opts.MinMapQ = *mapq
		if id == 1 {
			opts.Index = *bamIndexPath
		}
		log.Debug.Printf("track %d: opening %s", id, bamPaths[id-1])
		return source.NewBAM(bamPaths[id-1], ref, opts), nil
	}
}

func loadEntries(ctx context.Context) ([]interval.Entry, error) {
	if (*bedPath == "") == (*region == "") {
		return nil, errors.E(errors.Invalid, "exactly one of -bed and -region must be set")
	}
	if *region != "" {
		e, err := interval.ParseRegionString(*region)
		if err != nil {
			return nil, err
		}
		return []interval.Entry{e}, nil
	}
	return interval.LoadEntries(ctx, *bedPath)
}

func main() {
	flag.Usage = bioReadviewUsage
	shutdown := grail.Init()
	defer shutdown()

	allArgs := flag.Args()
	nPositionalArgs := flag.NArg()
	positionalArgs := allArgs[len(allArgs)-nPositionalArgs:]
	if nPositionalArgs < 2 || nPositionalArgs > 3 {
		log.Fatalf("Expected fapath and one or two bampaths; please check flag syntax: '%s'", strings.Join(positionalArgs, " "))
	}
	ctx := vcontext.Background()
	ref, refCloser, err := fasta.Open(ctx, positionalArgs[0])
	if err != nil {
		log.Panicf("%v", err)
	}
	defer refCloser.Close() // nolint: errcheck
	bamPaths := positionalArgs[1:]

	opts := track.DefaultOpts
	if *parallelism > 0 {
		opts.Parallelism = *parallelism
	}
	opts.MaxInterval = *maxInterval
	reg := track.NewRegistry(ctx, opener(ref, bamPaths), opts)
	defer func() {
		if err := reg.Close(); err != nil {
			log.Error.Printf("closing tracks: %v", err)
		}
	}()

	if *serve != "" {
		gin.SetMode(gin.ReleaseMode)
		srvOpts := server.DefaultOpts
		srvOpts.Timeout = *timeout
		log.Printf("serving %d tracks on %s", len(bamPaths), *serve)
		if err := server.New(reg, srvOpts).Handler().Run(*serve); err != nil {
			log.Panicf("%v", err)
		}
		return
	}

	cat, err := track.ParseCategory(*category)
	if err != nil {
		log.Panicf("%v", err)
	}
	classSet, err := diff.ParseClasses(*classes)
	if err != nil {
		log.Panicf("%v", err)
	}
	entries, err := loadEntries(ctx)
	if err != nil {
		log.Panicf("%v", err)
	}
	var conn *track.Connector
	if len(bamPaths) == 2 {
		conn, err = reg.DualConnector(1, 2)
	} else {
		conn, err = reg.Connector(1)
	}
	if err != nil {
		log.Panicf("%v", err)
	}
	eOpts := exportOpts{
		category:    cat,
		classes:     classSet,
		format:      *format,
		outPrefix:   *outPrefix,
		withDiffs:   *diffs,
		parallelism: opts.Parallelism,
		timeout:     *timeout,
	}
	if *onlyTrack != 0 {
		eOpts.trackIDs = []int{*onlyTrack}
	}
	if err := export(ctx, conn, entries, eOpts); err != nil {
		log.Panicf("%v", err)
	}
	log.Debug.Printf("exiting")
}
