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
package requestqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "readview",
		Subsystem: "requestqueue",
		Name:      "submitted_total",
		Help:      "Requests handed to a queue.",
	}, []string{"queue"})

	requestsSuperseded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "readview",
		Subsystem: "requestqueue",
		Name:      "superseded_total",
		Help:      "Requests replaced by a newer request before processing started.",
	}, []string{"queue"})

	requestsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "readview",
		Subsystem: "requestqueue",
		Name:      "processed_total",
		Help:      "Requests processed and dispatched.",
	}, []string{"queue"})

	requestsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "readview",
		Subsystem: "requestqueue",
		Name:      "failed_total",
		Help:      "Requests whose processing returned an error or panicked.",
	}, []string{"queue"})

	processingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "readview",
		Subsystem: "requestqueue",
		Name:      "processing_seconds",
		Help:      "Time from the start of processing to the end of dispatch.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"queue"})
)

type queueMetrics struct {
	submitted, superseded, processed, failed prometheus.Counter
	duration                                 prometheus.Observer
}

func newQueueMetrics(name string) queueMetrics {
	return queueMetrics{
		submitted:  requestsSubmitted.WithLabelValues(name),
		superseded: requestsSuperseded.WithLabelValues(name),
		processed:  requestsProcessed.WithLabelValues(name),
		failed:     requestsFailed.WithLabelValues(name),
		duration:   processingDuration.WithLabelValues(name),
	}
}
