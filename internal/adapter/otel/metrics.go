package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "yaksok"

// Metrics holds all negotiation metric instruments.
type Metrics struct {
	SelectionsSubmitted metric.Int64Counter
	RoundsAdvanced      metric.Int64Counter
	RevisionsSucceeded  metric.Int64Counter
	RevisionsFailed     metric.Int64Counter
	Finalizations       metric.Int64Counter
	RevisionDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SelectionsSubmitted, err = meter.Int64Counter("yaksok.selections.submitted",
		metric.WithDescription("Number of party selection submissions accepted"))
	if err != nil {
		return nil, err
	}

	m.RoundsAdvanced, err = meter.Int64Counter("yaksok.rounds.advanced",
		metric.WithDescription("Number of negotiation round transitions"))
	if err != nil {
		return nil, err
	}

	m.RevisionsSucceeded, err = meter.Int64Counter("yaksok.revisions.succeeded",
		metric.WithDescription("Number of clauses revised by the AI service"))
	if err != nil {
		return nil, err
	}

	m.RevisionsFailed, err = meter.Int64Counter("yaksok.revisions.failed",
		metric.WithDescription("Number of clauses left unrevised after retry exhaustion"))
	if err != nil {
		return nil, err
	}

	m.Finalizations, err = meter.Int64Counter("yaksok.finalizations",
		metric.WithDescription("Number of negotiations finalized"))
	if err != nil {
		return nil, err
	}

	m.RevisionDuration, err = meter.Float64Histogram("yaksok.revision.duration_seconds",
		metric.WithDescription("Clause revision call duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
