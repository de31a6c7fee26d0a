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

package downloadstats

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/seismo-tools/stream2segment/pkg/database"
	"github.com/seismo-tools/stream2segment/pkg/logging"
	"go.opencensus.io/trace"
	"gopkg.in/yaml.v3"
)

// DefaultMaxGapThreshold is the max gap, in number of samples, above which
// a segment is considered to have gaps or overlaps.
const DefaultMaxGapThreshold = 0.5

// Run holds the statistics of a single download run.
type Run struct {
	ID      int64     `json:"id"`
	RunTime time.Time `json:"run_time"`
	// EventParams are the parameters of the event query of the run.
	EventParams map[string]string `json:"event_params"`
	Stats       *Stats            `json:"stats"`
}

// Report is the segment statistics of one or more runs.
type Report struct {
	Runs []*Run `json:"runs"`
	// Aggregate sums the stats of all runs. It is nil for a single run.
	Aggregate *Stats `json:"aggregate,omitempty"`
}

// NewReport builds the report of the given download runs, or of all runs
// when downloadIDs is empty. Segments are grouped by data-center, labeled by
// the site of their dataselect URL.
func NewReport(ctx context.Context, db *database.DB, downloadIDs []int64, threshold float64) (*Report, error) {
	ctx, span := trace.StartSpan(ctx, "downloadstats.NewReport")
	defer span.End()

	runs, err := readRuns(ctx, db, downloadIDs)
	if err != nil {
		return nil, err
	}
	labels, err := dataCenterLabels(ctx, db)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*Run, len(runs))
	for _, r := range runs {
		byID[r.ID] = r
	}

	query := `
		SELECT
			COUNT(s.id), s.download_id, s.datacenter_id, s.download_code,
			CASE WHEN s.maxgap_numsamples < ? OR s.maxgap_numsamples > ? THEN 1 ELSE 0 END
		FROM segment s`
	threshold = math.Abs(threshold)
	args := []any{-threshold, threshold}
	if len(downloadIDs) > 0 {
		query += fmt.Sprintf(" WHERE s.download_id IN (%s)", database.Placeholders(len(downloadIDs)))
		for _, id := range downloadIDs {
			args = append(args, id)
		}
	}
	query += " GROUP BY 2, 3, 4, 5"

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			count, downloadID, dcID int64
			code                    sql.NullInt64
			hasGaps                 int
		)
		if err := rows.Scan(&count, &downloadID, &dcID, &code, &hasGaps); err != nil {
			return nil, fmt.Errorf("scanning segments: %w", err)
		}
		run, ok := byID[downloadID]
		if !ok {
			continue
		}
		var c *int64
		if code.Valid {
			c = &code.Int64
		}
		class := Classify(c, hasGaps == 1)
		label, ok := labels[dcID]
		if !ok {
			label = fmt.Sprintf("datacenter %d", dcID)
		}
		run.Stats.Add(label, class, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segments: %w", err)
	}

	report := &Report{Runs: runs}
	if len(runs) > 1 {
		report.Aggregate = New()
		for _, run := range runs {
			report.Aggregate = report.Aggregate.Merge(run.Stats)
		}
	}

	logging.FromContext(ctx).Named("downloadstats").Debugw("report built",
		"runs", len(runs), "downloadIDs", downloadIDs)
	return report, nil
}

// Run returns the run with the given id, or nil.
func (r *Report) Run(id int64) *Run {
	for _, run := range r.Runs {
		if run.ID == id {
			return run
		}
	}
	return nil
}

// WriteText writes a banner and the stats table of each run, followed by
// the aggregate table when the report has more than one run.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	for _, run := range r.Runs {
		b.WriteString(banner(fmt.Sprintf("Download id: %d", run.ID)))
		fmt.Fprintf(&b, "executed: %s\n", run.RunTime.UTC().Format(time.RFC3339))
		b.WriteString("event query parameters:\n")
		keys := make([]string, 0, len(run.EventParams))
		for k := range run.EventParams {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s = %s\n", k, run.EventParams[k])
		}
		b.WriteString("\n")
		if table := run.Stats.String(); table != "" {
			b.WriteString(table)
		} else {
			b.WriteString("N/A")
		}
		b.WriteString("\n\n")
	}
	if r.Aggregate != nil {
		b.WriteString(banner("Aggregated stats (all downloads)"))
		b.WriteString("\n")
		b.WriteString(r.Aggregate.String())
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func banner(title string) string {
	line := strings.Repeat("=", len(title)+4)
	return fmt.Sprintf("%s\n| %s |\n%s\n", line, title, line)
}

func readRuns(ctx context.Context, db *database.DB, downloadIDs []int64) ([]*Run, error) {
	query := `SELECT id, run_time, config FROM download`
	args := make([]any, 0, len(downloadIDs))
	if len(downloadIDs) > 0 {
		query += fmt.Sprintf(" WHERE id IN (%s)", database.Placeholders(len(downloadIDs)))
		for _, id := range downloadIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY id"

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying downloads: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			run    Run
			config sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.RunTime, &config); err != nil {
			return nil, fmt.Errorf("scanning downloads: %w", err)
		}
		run.EventParams = eventParams(config.String)
		run.Stats = New()
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating downloads: %w", err)
	}
	return runs, nil
}

// eventParams extracts the event query parameters from a stored run
// configuration. Unparsable configurations yield no parameters.
func eventParams(config string) map[string]string {
	var c struct {
		Start  time.Time         `yaml:"start"`
		End    time.Time         `yaml:"end"`
		Params map[string]string `yaml:"eventws_params"`
	}
	params := make(map[string]string)
	if err := yaml.Unmarshal([]byte(config), &c); err != nil {
		return params
	}
	for k, v := range c.Params {
		params[k] = v
	}
	if !c.Start.IsZero() {
		params["start"] = c.Start.UTC().Format(time.RFC3339)
	}
	if !c.End.IsZero() {
		params["end"] = c.End.UTC().Format(time.RFC3339)
	}
	return params
}

// dataCenterLabels maps the data-center ids to the scheme and host of their
// dataselect URL.
func dataCenterLabels(ctx context.Context, db *database.DB) (map[int64]string, error) {
	rows, err := db.Query(ctx, `SELECT id, dataselect_url FROM datacenter`)
	if err != nil {
		return nil, fmt.Errorf("querying datacenters: %w", err)
	}
	defer rows.Close()

	labels := make(map[int64]string)
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning datacenters: %w", err)
		}
		labels[id] = siteOf(raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating datacenters: %w", err)
	}
	return labels, nil
}

func siteOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
