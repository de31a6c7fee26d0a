// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fetch

import (
	"github.com/seismo-tools/stream2segment/internal/metrics"
	"github.com/seismo-tools/stream2segment/pkg/observability"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	fetchMetricsPrefix = metrics.MetricRoot + "fetch/"

	mRequestLatencyMs = stats.Float64(fetchMetricsPrefix+"request_latency",
		"Request latency", stats.UnitMilliseconds)
	mRequestFailures = stats.Int64(fetchMetricsPrefix+"request_failures",
		"Failed requests", stats.UnitDimensionless)
	mResponseBytes = stats.Int64(fetchMetricsPrefix+"response_bytes",
		"Response body size", stats.UnitBytes)
	mMemoryGuardTrips = stats.Int64(fetchMetricsPrefix+"memory_guard_trips",
		"Streams stopped by the memory guard", stats.UnitDimensionless)
)

func init() {
	observability.CollectViews([]*view.View{
		{
			Name:        metrics.MetricRoot + "fetch_request_count",
			Description: "Count of requests by result",
			Measure:     mRequestLatencyMs,
			TagKeys:     []tag.Key{observability.ResultTagKey},
			Aggregation: view.Count(),
		},
		{
			Name:        metrics.MetricRoot + "fetch_request_latency",
			Description: "Distribution of request latency in milliseconds",
			Measure:     mRequestLatencyMs,
			TagKeys:     []tag.Key{observability.ResultTagKey},
			Aggregation: view.Distribution(10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000, 120000),
		},
		{
			Name:        metrics.MetricRoot + "fetch_request_failures_count",
			Description: "Total count of failed requests",
			Measure:     mRequestFailures,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "fetch_response_bytes",
			Description: "Total bytes downloaded",
			Measure:     mResponseBytes,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "fetch_memory_guard_trips_count",
			Description: "Total count of streams stopped by the memory guard",
			Measure:     mMemoryGuardTrips,
			Aggregation: view.Sum(),
		},
	}...)
}
