// Package geocode resolves free-text place queries into coordinates and
// backfills them onto records that were saved without any.
//
// The package does not know about the database: callers hand Backfill a
// scan function producing candidates and an update function persisting a
// resolved pair.  That keeps the provider clients small and lets tests
// drive the orchestrator with plain slices.
package geocode

import (
	"context"
	"fmt"
	"strings"
)

// Result is one resolved coordinate pair.
type Result struct {
	Lat  float64
	Lon  float64
	Name string // provider's display name, informational only
}

// Geocoder turns a free-text query into coordinates.  A nil Result with
// a nil error means the provider answered but found no match.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Candidate is one record awaiting coordinates.
type Candidate struct {
	ID    int64
	Query string
}

// SkipReason says why a candidate was left untouched.
type SkipReason string

const (
	SkipNone     SkipReason = ""
	SkipNoMatch  SkipReason = "no-match"
	SkipError    SkipReason = "error"
	SkipConflict SkipReason = "gone" // row vanished between scan and update
)

// Outcome records what happened to one candidate.
type Outcome struct {
	ID      int64      `json:"id"`
	Query   string     `json:"query"`
	Updated bool       `json:"updated"`
	Reason  SkipReason `json:"reason,omitempty"`
	Err     string     `json:"error,omitempty"`
}

// Report sums up one backfill run.
type Report struct {
	Candidates int       `json:"candidates"`
	Updated    int       `json:"updated"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Backfill resolves and persists coordinates for every candidate the
// scan yields.  Provider misses and per-item failures are recorded in
// the report and never abort the run; only a failed scan returns an
// error.  When the scan yields nothing the geocoder is never called.
func Backfill(ctx context.Context,
	scan func(ctx context.Context) ([]Candidate, error),
	geocoder Geocoder,
	update func(ctx context.Context, id int64, lat, lon float64) (bool, error),
	logf func(format string, args ...any),
) (Report, error) {

	if logf == nil {
		logf = func(string, ...any) {}
	}

	candidates, err := scan(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("scan candidates: %w", err)
	}
	report := Report{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return report, nil
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := Outcome{ID: c.ID, Query: c.Query}

		res, err := geocoder.Geocode(ctx, strings.TrimSpace(c.Query))
		switch {
		case err != nil:
			out.Reason = SkipError
			out.Err = err.Error()
			logf("geocode: id=%d query=%q failed: %v", c.ID, c.Query, err)
		case res == nil:
			out.Reason = SkipNoMatch
			logf("geocode: id=%d query=%q no match", c.ID, c.Query)
		default:
			ok, err := update(ctx, c.ID, res.Lat, res.Lon)
			switch {
			case err != nil:
				out.Reason = SkipError
				out.Err = err.Error()
				logf("geocode: id=%d update failed: %v", c.ID, err)
			case !ok:
				out.Reason = SkipConflict
			default:
				out.Updated = true
				report.Updated++
			}
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	return report, nil
}
