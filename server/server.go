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

// Package server exposes track queries over HTTP.
//
// Routes:
//
//	GET    /tracks/:id/:category?region=chr:start-stop[&classes=..][&other=id][&diffs=true][&client=..]
//	DELETE /tracks/:id
//	GET    /metrics
//
// category is one of coverage, coverage-analysis, mappings or
// mappings-analysis.  With other=, the query runs on the dual connector
// comparing track id with track other.  A request that is replaced by a newer
// one on the same queue before processing starts is answered with 409.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/readview/interval"
	"github.com/grailbio/readview/pileup/diff"
	"github.com/grailbio/readview/track"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientHeader carries the client id of a query, in requests and responses.
const ClientHeader = "X-Readview-Client"

// Opts configures a Server.
type Opts struct {
	// Timeout bounds the wait for a query's outcome.  Zero means no limit
	// other than the HTTP request's own context.
	Timeout time.Duration
}

// DefaultOpts is suitable for interactive use.
var DefaultOpts = Opts{Timeout: 5 * time.Minute}

// Server answers HTTP queries from a track registry.
type Server struct {
	reg  *track.Registry
	opts Opts
}

// New creates a server.  The caller keeps ownership of reg.
func New(reg *track.Registry, opts Opts) *Server {
	return &Server{reg: reg, opts: opts}
}

// Handler returns the gin engine serving s's routes.
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/tracks/:id/:category", s.query)
	router.DELETE("/tracks/:id", s.remove)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// outcome is what a waiting HTTP handler is told about its query.
type outcome struct {
	status int
	res    track.Result
	err    error
}

// waiter is the track.Receiver of one HTTP query.  Exactly one of its methods
// is called per submitted request.
type waiter struct {
	client string
	done   chan outcome
}

func newWaiter(client string) *waiter {
	return &waiter{client: client, done: make(chan outcome, 1)}
}

func (w *waiter) Receive(res track.Result) {
	w.done <- outcome{status: http.StatusOK, res: res}
}

func (w *waiter) Superseded(req *track.IntervalRequest) {
	w.done <- outcome{status: http.StatusConflict, err: fmt.Errorf("request %s superseded by a newer request", req.ID)}
}

func (w *waiter) Failed(req *track.IntervalRequest, err error) {
	w.done <- outcome{status: statusOf(err), err: err}
}

func statusOf(err error) int {
	switch {
	case errors.Is(errors.Invalid, err):
		return http.StatusBadRequest
	case errors.Is(errors.NotExist, err):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func trackID(param, value string) (int, error) {
	id, err := strconv.Atoi(value)
	if err != nil || id < 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("%s: invalid track id %q", param, value))
	}
	return id, nil
}

func (s *Server) connector(c *gin.Context) (*track.Connector, error) {
	id, err := trackID("id", c.Param("id"))
	if err != nil {
		return nil, err
	}
	other := c.Query("other")
	if other == "" {
		return s.reg.Connector(id)
	}
	id2, err := trackID("other", other)
	if err != nil {
		return nil, err
	}
	return s.reg.DualConnector(id, id2)
}

func (s *Server) query(c *gin.Context) {
	client := c.Query("client")
	if client == "" {
		client = c.GetHeader(ClientHeader)
	}
	if client == "" {
		client = uuid.New().String()
	}
	c.Header(ClientHeader, client)

	cat, err := track.ParseCategory(c.Param("category"))
	if err != nil {
		abort(c, http.StatusNotFound, err)
		return
	}
	region, err := interval.ParseRegionString(c.Query("region"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	classes, err := diff.ParseClasses(c.Query("classes"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	conn, err := s.connector(c)
	if err != nil {
		abort(c, statusOf(err), err)
		return
	}
	w := newWaiter(client)
	req := track.NewIntervalRequest(region, classes, w)
	req.WithDiffs = c.Query("diffs") == "true"
	if err := conn.AddRequest(cat, req); err != nil {
		abort(c, statusOf(err), err)
		return
	}
	log.Debug.Printf("client %s: submitted %v %v to %s", client, cat, req, conn.Name())

	ctx := c.Request.Context()
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	select {
	case o := <-w.done:
		if o.err != nil {
			if o.status >= http.StatusInternalServerError {
				log.Error.Printf("client %s: request %s: %v", client, req.ID, o.err)
			}
			abort(c, o.status, o.err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"client":   client,
			"request":  req.ID,
			"region":   req.Region().String(),
			"category": cat.String(),
			"result":   o.res,
		})
	case <-ctx.Done():
		// The result, if any, lands in the buffered channel and is dropped.
		abort(c, http.StatusGatewayTimeout, ctx.Err())
	}
}

func (s *Server) remove(c *gin.Context) {
	id, err := trackID("id", c.Param("id"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := s.reg.Remove(id); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}
