// Package ridegen produces synthetic ride batches with injected anomalies.
package ridegen

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"

	"github.com/okian/farewatch/internal/adapters/table"
)

// Ride types written to the ride_type column.
const (
	TypeNormal     = "normal"
	TypeOvercharge = "overcharge"
	TypePhantom    = "phantom"
	TypeDetour     = "detour"
)

// Generation defaults.
const (
	defaultSeed        = 42
	defaultAnomalyRate = 0.05
	timestampLayout    = "2006-01-02 15:04:05"
)

// Pricing and trip-shape constants for normal rides.
const (
	baseFare        = 3.0
	perKMRate       = 1.2
	perMinuteRate   = 0.3
	medianDistance  = 6.0
	distanceSpread  = 0.6
	minDistance     = 0.3
	maxDistance     = 60.0
	minPace         = 2.0 // minutes per km
	paceRange       = 1.5
	fareNoise       = 0.1
	meanGapMinutes  = 3.0
	overchargeMin   = 4.0
	overchargeRange = 4.0
	phantomFareMin  = 20.0
	phantomFareSpan = 60.0
	detourFactor    = 4.0
)

var namespace = uuid.MustParse("6f1c2f8e-3c55-4b7a-9d8e-7f9a1e0c2b44")

// Ride is one generated row.
type Ride struct {
	RideID    string  `dataframe:"ride_id,string"`
	Timestamp string  `dataframe:"timestamp,string"`
	Fare      float64 `dataframe:"fare,float"`
	Distance  float64 `dataframe:"distance,float"`
	Duration  float64 `dataframe:"duration,float"`
	Type      string  `dataframe:"ride_type,string"`
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSeed sets the random seed.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// WithAnomalyRate sets the fraction of injected anomalies, within [0, 1].
func WithAnomalyRate(rate float64) Option {
	return func(g *Generator) {
		if rate >= 0 && rate <= 1 {
			g.anomalyRate = rate
		}
	}
}

// WithStart sets the timestamp of the first ride.
func WithStart(t time.Time) Option {
	return func(g *Generator) {
		if !t.IsZero() {
			g.start = t.UTC()
		}
	}
}

// Generator builds reproducible ride batches. It is not safe for concurrent use.
type Generator struct {
	seed        int64
	anomalyRate float64
	start       time.Time
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		seed:        defaultSeed,
		anomalyRate: defaultAnomalyRate,
		start:       time.Date(2024, time.January, 1, 6, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns n rides. The same seed always yields the same rides.
func (g *Generator) Generate(n int) []Ride {
	rng := rand.New(rand.NewSource(g.seed)) //nolint:gosec // reproducible samples
	rides := make([]Ride, 0, max(n, 0))
	at := g.start

	for i := 0; i < n; i++ {
		at = at.Add(time.Duration(rng.ExpFloat64() * meanGapMinutes * float64(time.Minute)))

		r := normalRide(rng)
		if rng.Float64() < g.anomalyRate {
			r = injectAnomaly(rng, r)
		}
		r.RideID = uuid.NewSHA1(namespace, []byte(strconv.FormatInt(g.seed, 10)+"/"+strconv.Itoa(i))).String()
		r.Timestamp = at.Format(timestampLayout)
		rides = append(rides, r)
	}
	return rides
}

func normalRide(rng *rand.Rand) Ride {
	distance := math.Exp(math.Log(medianDistance) + rng.NormFloat64()*distanceSpread)
	distance = math.Min(math.Max(distance, minDistance), maxDistance)
	duration := math.Max(distance*(minPace+rng.Float64()*paceRange)+rng.NormFloat64()*2, 1)
	fare := (baseFare + perKMRate*distance + perMinuteRate*duration) * (1 + rng.NormFloat64()*fareNoise)

	return Ride{
		Fare:     round(math.Max(fare, baseFare), 2),
		Distance: round(distance, 2),
		Duration: round(duration, 1),
		Type:     TypeNormal,
	}
}

func injectAnomaly(rng *rand.Rand, r Ride) Ride {
	switch rng.Intn(3) {
	case 0:
		r.Fare = round(r.Fare*(overchargeMin+rng.Float64()*overchargeRange), 2)
		r.Type = TypeOvercharge
	case 1:
		r.Distance = round(rng.Float64()*0.05, 2)
		r.Duration = round(0.5+rng.Float64()*1.5, 1)
		r.Fare = round(phantomFareMin+rng.Float64()*phantomFareSpan, 2)
		r.Type = TypePhantom
	default:
		r.Distance = round(r.Distance*detourFactor, 2)
		r.Duration = round(r.Duration*detourFactor*0.75, 1)
		r.Fare = round(baseFare+perKMRate*r.Distance+perMinuteRate*r.Duration, 2)
		r.Type = TypeDetour
	}
	return r
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Frame converts rides into a dataframe.
func Frame(rides []Ride) dataframe.DataFrame {
	return dataframe.LoadStructs(rides)
}

// WriteCSV writes rides as CSV with a header row.
func WriteCSV(w io.Writer, rides []Ride) error {
	if len(rides) == 0 {
		_, err := io.WriteString(w, "ride_id,timestamp,fare,distance,duration,ride_type\n")
		return err
	}
	if err := table.WriteCSV(w, Frame(rides)); err != nil {
		return fmt.Errorf("write rides: %w", err)
	}
	return nil
}
