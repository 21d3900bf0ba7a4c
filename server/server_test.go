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
package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/readview/pileup/diff"
	"github.com/grailbio/readview/requestqueue"
	"github.com/grailbio/readview/server"
	"github.com/grailbio/readview/source"
	"github.com/grailbio/readview/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRecords() []*diff.Record {
	return []*diff.Record{
		{Name: "r1", RefName: "chr1", Start: 100, Stop: 104, Cigar: "5M",
			ReadSeq: "ACGTA", RefSeq: "ACGTA", MapQ: 60},
		{Name: "r2", RefName: "chr1", Start: 102, Stop: 106, Cigar: "5M",
			ReadSeq: "GTTCG", RefSeq: "GTACG", Reverse: true, MapQ: 60},
	}
}

// gatedSource blocks every query until release is closed, and reports the
// first query on entered.
type gatedSource struct {
	src     source.Source
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) Alignments(ctx context.Context, refName string, left, right track.PosType) ([]*diff.Record, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.src.Alignments(ctx, refName, left, right)
}

func newServer(t *testing.T, open track.Opener) (*track.Registry, http.Handler) {
	reg := track.NewRegistry(context.Background(), open, track.DefaultOpts)
	return reg, server.New(reg, server.DefaultOpts).Handler()
}

func memoryOpener(t *testing.T) track.Opener {
	return func(_ context.Context, id int) (source.Source, error) {
		if id > 2 {
			return nil, errors.E(errors.NotExist, "no such track")
		}
		return source.NewMemory(testRecords())
	}
}

func get(h http.Handler, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", url, nil)
	h.ServeHTTP(w, req)
	return w
}

type response struct {
	Client   string          `json:"client"`
	Request  string          `json:"request"`
	Region   string          `json:"region"`
	Category string          `json:"category"`
	Result   json.RawMessage `json:"result"`
	Error    string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response {
	var r response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r), w.Body.String())
	return r
}

func TestCoverageRoute(t *testing.T) {
	reg, h := newServer(t, memoryOpener(t))
	defer func() { assert.NoError(t, reg.Close()) }()

	w := get(h, "/tracks/1/coverage?region=chr1:100-106&client=abc&diffs=true")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "abc", w.Header().Get(server.ClientHeader))
	r := decode(t, w)
	assert.Equal(t, "abc", r.Client)
	assert.Equal(t, "coverage", r.Category)
	assert.NotEmpty(t, r.Request)

	var res struct {
		Alignments int               `json:"alignments"`
		Diffs      []json.RawMessage `json:"diffs"`
	}
	require.NoError(t, json.Unmarshal(r.Result, &res))
	assert.Equal(t, 2, res.Alignments)
	assert.Len(t, res.Diffs, 1)
}

func TestMappingRoutes(t *testing.T) {
	reg, h := newServer(t, memoryOpener(t))
	defer func() { assert.NoError(t, reg.Close()) }()

	w := get(h, "/tracks/1/mappings?region=chr1:105-106&classes=BEST_MATCH")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(server.ClientHeader))
	var res struct {
		Mappings []struct {
			Name  string `json:"name"`
			Class string `json:"class"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Result, &res))
	require.Len(t, res.Mappings, 1)
	assert.Equal(t, "r2", res.Mappings[0].Name)
	assert.Equal(t, "BEST_MATCH", res.Mappings[0].Class)

	w = get(h, "/tracks/1/mappings-analysis?region=chr1:100-106&other=2")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, reg.Len())
}

func TestBadQueries(t *testing.T) {
	reg, h := newServer(t, memoryOpener(t))
	defer func() { assert.NoError(t, reg.Close()) }()

	for _, test := range []struct {
		url  string
		code int
	}{
		{"/tracks/1/pileup?region=chr1:1-10", http.StatusNotFound},
		{"/tracks/1/coverage", http.StatusBadRequest},
		{"/tracks/1/coverage?region=chr1:10-1", http.StatusBadRequest},
		{"/tracks/1/coverage?region=chr1:1-10&classes=GOOD", http.StatusBadRequest},
		{"/tracks/x/coverage?region=chr1:1-10", http.StatusBadRequest},
		{"/tracks/1/coverage?region=chr1:1-10&other=1", http.StatusBadRequest},
		{"/tracks/7/coverage?region=chr1:1-10", http.StatusNotFound},
		{"/tracks/1/coverage?region=chr1:1-2000000", http.StatusBadRequest},
	} {
		w := get(h, test.url)
		assert.Equal(t, test.code, w.Code, test.url)
		assert.NotEmpty(t, decode(t, w).Error, test.url)
	}
}

func TestSupersededQuery(t *testing.T) {
	gate := &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
	open := func(_ context.Context, id int) (source.Source, error) {
		src, err := source.NewMemory(testRecords())
		gate.src = src
		return gate, err
	}
	reg, h := newServer(t, open)
	defer func() { assert.NoError(t, reg.Close()) }()
	conn, err := reg.Connector(1)
	require.NoError(t, err)

	results := make(map[string]*httptest.ResponseRecorder)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	issue := func(name, region string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := get(h, "/tracks/1/coverage?client="+name+"&region="+region)
			mu.Lock()
			results[name] = w
			mu.Unlock()
		}()
	}

	issue("first", "chr1:100-104")
	<-gate.entered
	issue("second", "chr1:101-104")
	waitForState(t, conn, requestqueue.Pending)
	issue("third", "chr1:102-104")
	// The second query is answered once the third replaces it.
	for {
		mu.Lock()
		_, done := results["second"]
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(gate.release)
	wg.Wait()

	assert.Equal(t, http.StatusOK, results["first"].Code)
	assert.Equal(t, http.StatusConflict, results["second"].Code)
	assert.Contains(t, decode(t, results["second"]).Error, "superseded")
	assert.Equal(t, http.StatusOK, results["third"].Code)
	assert.Equal(t, "chr1:102-104", decode(t, results["third"]).Region)
}

func waitForState(t *testing.T, conn *track.Connector, want requestqueue.State) {
	deadline := time.Now().Add(10 * time.Second)
	for conn.State(track.Coverage) != want {
		if time.Now().After(deadline) {
			t.Fatalf("queue never reached state %v", want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRemoveAndMetrics(t *testing.T) {
	reg, h := newServer(t, memoryOpener(t))
	defer func() { assert.NoError(t, reg.Close()) }()

	require.Equal(t, http.StatusOK, get(h, "/tracks/2/coverage?region=chr1:100-101").Code)
	assert.Equal(t, 1, reg.Len())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/tracks/2", nil)
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, reg.Len())

	w = get(h, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "readview_requestqueue_processed_total")
}
