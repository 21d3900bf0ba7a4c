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
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grailbio/readview/interval"
	"github.com/grailbio/readview/pileup/coverage"
	"github.com/grailbio/readview/pileup/diff"
	"github.com/grailbio/readview/source"
	"github.com/grailbio/readview/track"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

func testConnector(t *testing.T) *track.Connector {
	src, err := source.NewMemory([]*diff.Record{
		{Name: "r1", RefName: "chr1", Start: 10, Stop: 14, Cigar: "2M1I3M",
			ReadSeq: "ACTGTA", RefSeq: "ACGTA", MapQ: 30},
		{Name: "r2", RefName: "chr1", Start: 12, Stop: 16, Cigar: "5M",
			ReadSeq: "GTAAC", RefSeq: "GTACC", Reverse: true, MapQ: 30},
	})
	assert.NoError(t, err)
	return track.NewConnector(context.Background(), 1, src, track.DefaultOpts)
}

func testOpts(prefix string) exportOpts {
	return exportOpts{
		category:    track.Coverage,
		classes:     diff.AllClasses,
		format:      "tsv",
		outPrefix:   prefix,
		parallelism: 1,
		timeout:     time.Minute,
	}
}

var testEntries = []interval.Entry{
	{RefName: "chr1", Start0: 9, End: 12},
	{RefName: "chr1", Start0: 13, End: 16},
}

func TestExportTSV(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	conn := testConnector(t)
	defer conn.Close() // nolint: errcheck

	prefix := filepath.Join(tmpdir, "out")
	opts := testOpts(prefix)
	opts.withDiffs = true
	assert.NoError(t, export(context.Background(), conn, testEntries, opts))

	got, err := ioutil.ReadFile(prefix + ".chr1_10_12.coverage.tsv")
	assert.NoError(t, err)
	expect.EQ(t, string(got),
		"#CHROM\tPOS\tperfect+\tperfect-\tbestMatch+\tbestMatch-\tcommon+\tcommon-\tINS\n"+
			"chr1\t10\t0\t0\t1\t0\t0\t0\t0\n"+
			"chr1\t11\t0\t0\t1\t0\t0\t0\t0\n"+
			"chr1\t12\t0\t0\t1\t1\t0\t0\t1\n")
	got, err = ioutil.ReadFile(prefix + ".chr1_10_12.diffs.tsv")
	assert.NoError(t, err)
	expect.EQ(t, string(got),
		"#CHROM\tPOS\tKIND\tORDER\tBASE\tSTRAND\tCOUNT\tBASEQ\tMAPQ\n"+
			"chr1\t12\tinsertion\t0\tT\t+\t1\t.\t30\n")

	got, err = ioutil.ReadFile(prefix + ".chr1_14_16.diffs.tsv")
	assert.NoError(t, err)
	// r2 reads A for the reference C at 15; reverse-strand bases are
	// reported in sequencing orientation.
	expect.EQ(t, string(got),
		"#CHROM\tPOS\tKIND\tORDER\tBASE\tSTRAND\tCOUNT\tBASEQ\tMAPQ\n"+
			"chr1\t15\tsubstitution\t0\tT\t-\t1\t.\t30\n")
}

func TestExportBgzipAndRio(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	conn := testConnector(t)
	defer conn.Close() // nolint: errcheck
	ctx := context.Background()

	plain := filepath.Join(tmpdir, "plain")
	assert.NoError(t, export(ctx, conn, testEntries[:1], testOpts(plain)))
	_, err := os.Stat(plain + ".chr1_10_12.diffs.tsv")
	expect.True(t, os.IsNotExist(err))

	bgz := filepath.Join(tmpdir, "bgz")
	opts := testOpts(bgz)
	opts.format = "tsv-bgz"
	assert.NoError(t, export(ctx, conn, testEntries[:1], opts))
	f, err := os.Open(bgz + ".chr1_10_12.coverage.tsv.gz")
	assert.NoError(t, err)
	defer f.Close() // nolint: errcheck
	gz, err := gzip.NewReader(f)
	assert.NoError(t, err)
	unzipped, err := ioutil.ReadAll(gz)
	assert.NoError(t, err)
	want, err := ioutil.ReadFile(plain + ".chr1_10_12.coverage.tsv")
	assert.NoError(t, err)
	expect.EQ(t, string(unzipped), string(want))

	rio := filepath.Join(tmpdir, "rio")
	opts = testOpts(rio)
	opts.format = "rio"
	assert.NoError(t, export(ctx, conn, testEntries[1:], opts))
	data, err := ioutil.ReadFile(rio + ".chr1_14_16.coverage.rio")
	assert.NoError(t, err)
	acc, refName, err := track.ReadCoverageRio(bytes.NewReader(data))
	assert.NoError(t, err)
	expect.EQ(t, refName, "chr1")
	expect.EQ(t, acc.Channel(coverage.BestMatchFwd), []int32{1, 0, 0})
	expect.EQ(t, acc.Channel(coverage.BestMatchRev), []int32{1, 1, 1})
	expect.EQ(t, acc.HighestCoverage(), 2)

	opts.format = "bam"
	assert.HasSubstr(t, export(ctx, conn, testEntries[1:], opts).Error(), "unknown output format")
}

func TestExportMappings(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	conn := testConnector(t)
	defer conn.Close() // nolint: errcheck

	prefix := filepath.Join(tmpdir, "out")
	opts := testOpts(prefix)
	opts.category = track.MappingAnalysis
	assert.NoError(t, export(context.Background(), conn, testEntries[1:], opts))
	data, err := ioutil.ReadFile(prefix + ".chr1_14_16.mappings.json")
	assert.NoError(t, err)
	var res struct {
		Mappings []struct {
			Name  string            `json:"name"`
			Diffs []json.RawMessage `json:"diffs"`
		} `json:"mappings"`
	}
	assert.NoError(t, json.Unmarshal(data, &res))
	expect.EQ(t, len(res.Mappings), 2)
	expect.EQ(t, res.Mappings[0].Name, "r1")
	expect.EQ(t, len(res.Mappings[1].Diffs), 1)
}
