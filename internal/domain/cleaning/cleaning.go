// Package cleaning validates raw ride tables and derives the efficiency ratios.
package cleaning

import (
	"math"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/okian/farewatch/internal/domain/model"
)

// Denominator floors for the derived ratios.
const (
	MinDistanceKM      = 0.1
	MinDurationMinutes = 1.0
)

// DefaultTimestampLayouts are tried in order until one parses.
var DefaultTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// Cells the CSV loader uses for missing text values.
var missingText = map[string]struct{}{"": {}, "NA": {}, "NaN": {}, "nan": {}, "<nil>": {}}

// Stats counts what a Clean call did to the table. Each dropped row is counted
// once, under the first failing check: timestamp, then null, then negative.
type Stats struct {
	InputRows        int `json:"input_rows"`
	DroppedNull      int `json:"dropped_null"`
	DroppedNegative  int `json:"dropped_negative"`
	DroppedTimestamp int `json:"dropped_timestamp"`
	OutputRows       int `json:"output_rows"`
}

// Dropped is the total number of rows removed.
func (s Stats) Dropped() int {
	return s.DroppedNull + s.DroppedNegative + s.DroppedTimestamp
}

// Cleaner turns raw ride tables into processed ones. It holds only
// configuration and is safe for concurrent use.
type Cleaner struct {
	policy  TimestampPolicy
	layouts []string
}

// New creates a Cleaner that fails on unparsable timestamps by default.
func New(opts ...Option) *Cleaner {
	c := &Cleaner{
		policy:  PolicyFail,
		layouts: DefaultTimestampLayouts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy reports the configured timestamp policy.
func (c *Cleaner) Policy() TimestampPolicy { return c.policy }

// Clean validates df and returns a new frame holding only valid rows, with
// fare_per_km and fare_per_minute appended. df is not modified.
func (c *Cleaner) Clean(df dataframe.DataFrame) (dataframe.DataFrame, Stats, error) {
	if df.Err != nil {
		return dataframe.DataFrame{}, Stats{}, df.Err
	}
	var missing []string
	for _, name := range model.RequiredColumns {
		if !model.HasColumn(df, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return dataframe.DataFrame{}, Stats{}, &SchemaError{Missing: missing}
	}

	n := df.Nrow()
	stats := Stats{InputRows: n}

	// Timestamps are parsed for every row before anything is dropped.
	var stamps []string
	badStamp := make([]bool, n)
	if model.HasColumn(df, model.ColTimestamp) {
		raw := df.Col(model.ColTimestamp).Records()
		stamps = make([]string, n)
		for i, v := range raw {
			v = strings.TrimSpace(v)
			if _, ok := missingText[v]; ok {
				continue
			}
			ts, err := c.parseTimestamp(v)
			if err != nil {
				if c.policy == PolicyFail {
					return dataframe.DataFrame{}, Stats{}, &ParseError{Row: i + 1, Column: model.ColTimestamp, Value: v, Err: err}
				}
				badStamp[i] = true
				continue
			}
			stamps[i] = ts.UTC().Format(model.TimestampLayout)
		}
	}

	fare := df.Col(model.ColFare).Float()
	distance := df.Col(model.ColDistance).Float()
	duration := df.Col(model.ColDuration).Float()

	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case badStamp[i]:
			stats.DroppedTimestamp++
		case isNull(fare[i]) || isNull(distance[i]) || isNull(duration[i]):
			stats.DroppedNull++
		case fare[i] < 0 || distance[i] < 0 || duration[i] < 0:
			stats.DroppedNegative++
		default:
			keep = append(keep, i)
		}
	}
	stats.OutputRows = len(keep)
	if len(keep) == 0 {
		return dataframe.DataFrame{}, stats, &EmptyResultError{InputRows: n, DroppedRows: stats.Dropped()}
	}

	keptFare := pick(fare, keep)
	keptDistance := pick(distance, keep)
	keptDuration := pick(duration, keep)
	perKM, perMinute := Derive(keptFare, keptDistance, keptDuration)

	out := df.Subset(keep)
	cols := []series.Series{
		series.New(keptFare, series.Float, model.ColFare),
		series.New(keptDistance, series.Float, model.ColDistance),
		series.New(keptDuration, series.Float, model.ColDuration),
	}
	if stamps != nil {
		cols = append(cols, series.New(pickString(stamps, keep), series.String, model.ColTimestamp))
	}
	cols = append(cols,
		series.New(perKM, series.Float, model.ColFarePerKM),
		series.New(perMinute, series.Float, model.ColFarePerMinute),
	)
	for _, col := range cols {
		out = out.Mutate(col)
	}
	if out.Err != nil {
		return dataframe.DataFrame{}, stats, out.Err
	}
	return out, stats, nil
}

// Derive computes fare_per_km and fare_per_minute with floored denominators.
func Derive(fare, distance, duration []float64) (perKM, perMinute []float64) {
	perKM = make([]float64, len(fare))
	perMinute = make([]float64, len(fare))
	for i := range fare {
		perKM[i] = fare[i] / math.Max(distance[i], MinDistanceKM)
		perMinute[i] = fare[i] / math.Max(duration[i], MinDurationMinutes)
	}
	return perKM, perMinute
}

func (c *Cleaner) parseTimestamp(v string) (time.Time, error) {
	var firstErr error
	for _, layout := range c.layouts {
		ts, err := time.Parse(layout, v)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func isNull(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func pick(vals []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = vals[j]
	}
	return out
}

func pickString(vals []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = vals[j]
	}
	return out
}
