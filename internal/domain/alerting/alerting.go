// Package alerting derives dashboard metrics, high-risk alerts and CSV exports
// from a scored ride table.
package alerting

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/farewatch/internal/adapters/table"
	"github.com/okian/farewatch/internal/domain/model"
)

// Export file names offered for download.
const (
	AnomaliesFileName = "all_anomalies.csv"
	HighRiskFileName  = "high_risk_anomalies.csv"
)

// DefaultThreshold is the default high-risk score threshold.
const DefaultThreshold = -0.5

// ErrNotScored is returned for tables without verdict columns.
var ErrNotScored = errors.New("table is not scored")

// Summary holds the headline dashboard metrics of one batch.
type Summary struct {
	TotalRides  int     `json:"total_rides"`
	CleanRides  int     `json:"clean_rides"`
	DroppedRows int     `json:"dropped_rows"`
	Anomalies   int     `json:"anomalies"`
	HighRisk    int     `json:"high_risk"`
	AverageFare float64 `json:"average_fare"`
	AnomalyRate float64 `json:"anomaly_rate"` // anomalies / TotalRides
}

// Alert is one escalated ride.
type Alert struct {
	Timestamp    string  `json:"timestamp,omitempty"`
	Fare         float64 `json:"fare"`
	Distance     float64 `json:"distance"`
	FarePerKM    float64 `json:"fare_per_km"`
	AnomalyScore float64 `json:"anomaly_score"`
	Message      string  `json:"message"`
}

// Summarize computes the dashboard metrics. totalRides is the row count of the
// raw upload, before cleaning.
func Summarize(totalRides int, scored dataframe.DataFrame, threshold float64) (Summary, error) {
	if err := checkScored(scored); err != nil {
		return Summary{}, err
	}
	s := Summary{
		TotalRides:  totalRides,
		CleanRides:  scored.Nrow(),
		DroppedRows: max(totalRides-scored.Nrow(), 0),
		Anomalies:   Anomalies(scored).Nrow(),
		HighRisk:    HighRisk(scored, threshold).Nrow(),
	}
	if s.CleanRides > 0 {
		s.AverageFare = stat.Mean(scored.Col(model.ColFare).Float(), nil)
	}
	if totalRides > 0 {
		s.AnomalyRate = float64(s.Anomalies) / float64(totalRides)
	}
	return s, nil
}

// Anomalies returns every row labeled anomalous, regardless of score.
func Anomalies(scored dataframe.DataFrame) dataframe.DataFrame {
	return scored.Filter(dataframe.F{
		Colname:    model.ColIsAnomaly,
		Comparator: series.Eq,
		Comparando: true,
	})
}

// HighRisk returns anomalous rows whose score is strictly below threshold.
func HighRisk(scored dataframe.DataFrame, threshold float64) dataframe.DataFrame {
	return Anomalies(scored).Filter(dataframe.F{
		Colname:    model.ColAnomalyScore,
		Comparator: series.Less,
		Comparando: threshold,
	})
}

// Alerts builds one alert per high-risk row, in table order.
func Alerts(scored dataframe.DataFrame, threshold float64) ([]Alert, error) {
	if err := checkScored(scored); err != nil {
		return nil, err
	}
	risky, err := model.ScoredRecords(HighRisk(scored, threshold))
	if err != nil {
		return nil, err
	}
	alerts := make([]Alert, 0, len(risky))
	for _, r := range risky {
		a := Alert{
			Fare:         r.Fare,
			Distance:     r.Distance,
			FarePerKM:    r.FarePerKM,
			AnomalyScore: r.AnomalyScore,
		}
		if !r.Timestamp.IsZero() {
			a.Timestamp = r.Timestamp.Format(model.TimestampLayout)
		}
		a.Message = fmt.Sprintf("Suspicious fare detected: fare $%.2f, distance %.1f km, fare per km $%.2f, anomaly score %.3f",
			a.Fare, a.Distance, a.FarePerKM, a.AnomalyScore)
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// WriteAnomalies writes every anomalous row as CSV.
func WriteAnomalies(w io.Writer, scored dataframe.DataFrame) error {
	if err := checkScored(scored); err != nil {
		return err
	}
	return table.WriteCSV(w, Anomalies(scored))
}

// WriteHighRisk writes the high-risk rows as CSV.
func WriteHighRisk(w io.Writer, scored dataframe.DataFrame, threshold float64) error {
	if err := checkScored(scored); err != nil {
		return err
	}
	return table.WriteCSV(w, HighRisk(scored, threshold))
}

// ValidThreshold reports whether t is inside [-1, 0].
func ValidThreshold(t float64) bool {
	return !math.IsNaN(t) && t >= -1 && t <= 0
}

func checkScored(df dataframe.DataFrame) error {
	if df.Err != nil {
		return df.Err
	}
	if !model.HasColumn(df, model.ColIsAnomaly) || !model.HasColumn(df, model.ColAnomalyScore) {
		return ErrNotScored
	}
	return nil
}
