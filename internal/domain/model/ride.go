// Package model contains the ride records passed between pipeline stages.
package model

import (
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
)

// Canonical column names.
const (
	ColTimestamp     = "timestamp"
	ColFare          = "fare"
	ColDistance      = "distance"
	ColDuration      = "duration"
	ColFarePerKM     = "fare_per_km"
	ColFarePerMinute = "fare_per_minute"
	ColIsAnomaly     = "is_anomaly"
	ColAnomalyScore  = "anomaly_score"
)

// TimestampLayout is the normalised text form of parsed timestamps.
const TimestampLayout = time.RFC3339

// RequiredColumns must be present in every uploaded batch.
var RequiredColumns = []string{ColFare, ColDistance, ColDuration}

// FeatureColumns is the feature vector fed to the outlier model, in order.
var FeatureColumns = []string{ColFare, ColDistance, ColDuration, ColFarePerKM, ColFarePerMinute}

// RideRecord is one cleaned input row.
type RideRecord struct {
	Timestamp time.Time `json:"timestamp,omitempty"` // zero when absent
	Fare      float64   `json:"fare"`
	Distance  float64   `json:"distance"`
	Duration  float64   `json:"duration"` // minutes
}

// ProcessedRecord adds the derived efficiency ratios.
type ProcessedRecord struct {
	RideRecord
	FarePerKM     float64 `json:"fare_per_km"`
	FarePerMinute float64 `json:"fare_per_minute"`
}

// ScoredRecord adds the outlier model's verdict.
type ScoredRecord struct {
	ProcessedRecord
	IsAnomaly    bool    `json:"is_anomaly"`
	AnomalyScore float64 `json:"anomaly_score"`
}

// HasColumn reports whether df has a column called name.
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// ProcessedRecords returns typed views of a cleaned frame.
func ProcessedRecords(df dataframe.DataFrame) ([]ProcessedRecord, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	for _, c := range FeatureColumns {
		if !HasColumn(df, c) {
			return nil, fmt.Errorf("processed records: missing column %q", c)
		}
	}

	n := df.Nrow()
	fare := df.Col(ColFare).Float()
	distance := df.Col(ColDistance).Float()
	duration := df.Col(ColDuration).Float()
	perKM := df.Col(ColFarePerKM).Float()
	perMinute := df.Col(ColFarePerMinute).Float()

	var stamps []string
	if HasColumn(df, ColTimestamp) {
		stamps = df.Col(ColTimestamp).Records()
	}

	out := make([]ProcessedRecord, n)
	for i := 0; i < n; i++ {
		out[i] = ProcessedRecord{
			RideRecord: RideRecord{
				Fare:     fare[i],
				Distance: distance[i],
				Duration: duration[i],
			},
			FarePerKM:     perKM[i],
			FarePerMinute: perMinute[i],
		}
		if stamps != nil {
			if ts, err := time.Parse(TimestampLayout, stamps[i]); err == nil {
				out[i].Timestamp = ts
			}
		}
	}
	return out, nil
}

// ScoredRecords returns typed views of a scored frame.
func ScoredRecords(df dataframe.DataFrame) ([]ScoredRecord, error) {
	processed, err := ProcessedRecords(df)
	if err != nil {
		return nil, err
	}
	if !HasColumn(df, ColIsAnomaly) || !HasColumn(df, ColAnomalyScore) {
		return nil, fmt.Errorf("scored records: missing %q or %q", ColIsAnomaly, ColAnomalyScore)
	}

	flags := df.Col(ColIsAnomaly)
	scores := df.Col(ColAnomalyScore).Float()

	out := make([]ScoredRecord, len(processed))
	for i := range processed {
		flag, err := flags.Elem(i).Bool()
		if err != nil {
			return nil, fmt.Errorf("scored records: row %d: %w", i, err)
		}
		out[i] = ScoredRecord{
			ProcessedRecord: processed[i],
			IsAnomaly:       flag,
			AnomalyScore:    scores[i],
		}
	}
	return out, nil
}
