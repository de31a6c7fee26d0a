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

package download

import (
	"github.com/seismo-tools/stream2segment/internal/metrics"
	"github.com/seismo-tools/stream2segment/pkg/observability"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	downloadMetricsPrefix = metrics.MetricRoot + "download/"

	mDiscardedStations = stats.Int64(downloadMetricsPrefix+"discarded_stations",
		"Stations discarded as duplicated across data-centers", stats.UnitDimensionless)
	mFailedDataCenters = stats.Int64(downloadMetricsPrefix+"failed_datacenters",
		"Data-centers whose station request failed", stats.UnitDimensionless)
	mRunLatencyMs = stats.Float64(downloadMetricsPrefix+"run_latency",
		"Download run latency", stats.UnitMilliseconds)
)

func init() {
	observability.CollectViews([]*view.View{
		{
			Name:        metrics.MetricRoot + "download_discarded_stations_count",
			Description: "Total count of stations discarded as duplicated",
			Measure:     mDiscardedStations,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "download_failed_datacenters_count",
			Description: "Total count of failed data-center station requests",
			Measure:     mFailedDataCenters,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "download_run_count",
			Description: "Count of download runs by outcome",
			Measure:     mRunLatencyMs,
			TagKeys:     []tag.Key{observability.ResultTagKey},
			Aggregation: view.Count(),
		},
		{
			Name:        metrics.MetricRoot + "download_run_latency",
			Description: "Distribution of download run latency in milliseconds",
			Measure:     mRunLatencyMs,
			TagKeys:     []tag.Key{observability.ResultTagKey},
			Aggregation: view.Distribution(1000, 10000, 60000, 300000, 900000, 3600000),
		},
	}...)
}
