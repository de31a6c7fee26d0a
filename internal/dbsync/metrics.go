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

package dbsync

import (
	"github.com/seismo-tools/stream2segment/internal/metrics"
	"github.com/seismo-tools/stream2segment/pkg/observability"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	syncMetricsPrefix = metrics.MetricRoot + "dbsync/"

	mInserted = stats.Int64(syncMetricsPrefix+"inserted",
		"Rows inserted", stats.UnitDimensionless)
	mNotInserted = stats.Int64(syncMetricsPrefix+"not_inserted",
		"Rows rejected or dropped on insert", stats.UnitDimensionless)
	mUpdated = stats.Int64(syncMetricsPrefix+"updated",
		"Rows updated", stats.UnitDimensionless)
	mNotUpdated = stats.Int64(syncMetricsPrefix+"not_updated",
		"Rows rejected on update", stats.UnitDimensionless)
	mSyncLatencyMs = stats.Float64(syncMetricsPrefix+"latency",
		"Sync latency", stats.UnitMilliseconds)
)

func tagsFor(table string) []tag.Mutator {
	return []tag.Mutator{observability.WithTable(table)}
}

func init() {
	tags := []tag.Key{observability.TableTagKey}
	observability.CollectViews([]*view.View{
		{
			Name:        metrics.MetricRoot + "dbsync_inserted_count",
			Description: "Total count of inserted rows",
			Measure:     mInserted,
			TagKeys:     tags,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "dbsync_not_inserted_count",
			Description: "Total count of rows not inserted",
			Measure:     mNotInserted,
			TagKeys:     tags,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "dbsync_updated_count",
			Description: "Total count of updated rows",
			Measure:     mUpdated,
			TagKeys:     tags,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "dbsync_not_updated_count",
			Description: "Total count of rows not updated",
			Measure:     mNotUpdated,
			TagKeys:     tags,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "dbsync_latency",
			Description: "Distribution of sync latency in milliseconds",
			Measure:     mSyncLatencyMs,
			TagKeys:     tags,
			Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000, 10000),
		},
	}...)
}
