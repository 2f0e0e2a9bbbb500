package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

// SourceTrend summarizes the saved runs of one log.
type SourceTrend struct {
	Source         string  `json:"source"`
	Runs           int     `json:"runs"`
	CleanPct       float64 `json:"clean_pct"`
	AvgErrors      float64 `json:"avg_errors"`
	AvgWarnings    float64 `json:"avg_warnings"`
	AvgBadBoxes    float64 `json:"avg_badboxes"`
	LatestErrors   int     `json:"latest_errors"`
	LatestWarnings int     `json:"latest_warnings"`
	FirstSeen      string  `json:"first_seen"`
	LastSeen       string  `json:"last_seen"`
}

// QuerySourceTrends returns per-source run statistics. A run is clean when
// it has no errors. The latest counts come from the newest run.
func QuerySourceTrends(database DB, since string) ([]SourceTrend, error) {
	query := `SELECT source, errors, warnings, badboxes, timestamp FROM parse_runs`
	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY id ASC`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query source trends: %w", err)
	}
	defer rows.Close()

	type sourceInfo struct {
		errors, warnings, badboxes []float64
		clean                      int
		latestErrors, latestWarns  int
		first, last                string
	}
	bySource := make(map[string]*sourceInfo)
	for rows.Next() {
		var source, ts string
		var errs, warns, boxes int
		if err := rows.Scan(&source, &errs, &warns, &boxes, &ts); err != nil {
			return nil, fmt.Errorf("scan source trend: %w", err)
		}
		info, ok := bySource[source]
		if !ok {
			info = &sourceInfo{first: ts}
			bySource[source] = info
		}
		info.errors = append(info.errors, float64(errs))
		info.warnings = append(info.warnings, float64(warns))
		info.badboxes = append(info.badboxes, float64(boxes))
		if errs == 0 {
			info.clean++
		}
		info.latestErrors, info.latestWarns = errs, warns
		info.last = ts
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []SourceTrend
	for source, info := range bySource {
		n := len(info.errors)
		results = append(results, SourceTrend{
			Source:         source,
			Runs:           n,
			CleanPct:       pct(info.clean, n),
			AvgErrors:      avg(info.errors),
			AvgWarnings:    avg(info.warnings),
			AvgBadBoxes:    avg(info.badboxes),
			LatestErrors:   info.latestErrors,
			LatestWarnings: info.latestWarns,
			FirstSeen:      info.first,
			LastSeen:       info.last,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Source < results[j].Source
	})
	return results, nil
}

// BuildDuration holds duration stats for the builds of one log.
type BuildDuration struct {
	Source string  `json:"source"`
	Count  int     `json:"count"`
	Avg    float64 `json:"avg_seconds"`
	P50    float64 `json:"p50_seconds"`
	P95    float64 `json:"p95_seconds"`
}

// QueryBuildDurations returns average and percentile build times per
// source. Only runs recorded by `texlog run` carry an exit code and a
// duration; plain parses are skipped.
func QueryBuildDurations(database DB, since string) ([]BuildDuration, error) {
	query := `SELECT source, duration_ms FROM parse_runs WHERE exit_code IS NOT NULL`
	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query build durations: %w", err)
	}
	defer rows.Close()

	durations := make(map[string][]float64)
	for rows.Next() {
		var source string
		var ms sql.NullInt64
		if err := rows.Scan(&source, &ms); err != nil {
			return nil, fmt.Errorf("scan build duration: %w", err)
		}
		durations[source] = append(durations[source], float64(ms.Int64)/1000)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []BuildDuration
	for source, secs := range durations {
		sort.Float64s(secs)
		results = append(results, BuildDuration{
			Source: source,
			Count:  len(secs),
			Avg:    avg(secs),
			P50:    percentile(secs, 50),
			P95:    percentile(secs, 95),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Source < results[j].Source
	})
	return results, nil
}

// Recurring is a diagnostic that shows up again and again.
type Recurring struct {
	Kind    string  `json:"kind"`
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Count   int     `json:"count"`
	Runs    int     `json:"runs"`
	Sources int     `json:"sources"`
	RunPct  float64 `json:"run_pct"`
}

// QueryRecurring groups saved diagnostics by kind, type, and message and
// returns the most frequent first. RunPct is the share of all runs in the
// window the diagnostic appeared in. A limit <= 0 returns every group.
func QueryRecurring(database DB, since string, limit int) ([]Recurring, error) {
	where := ""
	args := []interface{}{}
	if since != "" {
		where = ` WHERE r.timestamp >= ?`
		args = append(args, since)
	}

	var totalRuns int
	countQuery := `SELECT COUNT(*) FROM parse_runs r` + where
	if err := database.Conn().QueryRow(database.Rebind(countQuery), args...).Scan(&totalRuns); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	query := `
		SELECT d.kind, COALESCE(d.type, ''), COALESCE(d.message, ''),
			COUNT(*), COUNT(DISTINCT d.run_id), COUNT(DISTINCT r.source)
		FROM diagnostics d
		JOIN parse_runs r ON r.id = d.run_id` + where + `
		GROUP BY d.kind, COALESCE(d.type, ''), COALESCE(d.message, '')
		ORDER BY COUNT(*) DESC, d.kind, COALESCE(d.message, '')`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring diagnostics: %w", err)
	}
	defer rows.Close()

	var results []Recurring
	for rows.Next() {
		var r Recurring
		if err := rows.Scan(&r.Kind, &r.Type, &r.Message, &r.Count, &r.Runs, &r.Sources); err != nil {
			return nil, fmt.Errorf("scan recurring diagnostic: %w", err)
		}
		r.RunPct = pct(r.Runs, totalRuns)
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
