package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsRecorded counts appended audit events by object type.
	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_events_recorded_total",
		Help: "Audit events appended to the store.",
	}, []string{"object_type"})

	// EventsRejected counts deliveries refused by append validation.
	EventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_rejected_total",
		Help: "Event appends rejected by validation.",
	})

	// GridQueries counts admin grid page requests.
	GridQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_grid_queries_total",
		Help: "Server-side grid query requests served.",
	})

	// EventsPruned counts rows removed by the retention worker.
	EventsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_pruned_total",
		Help: "Events removed by the retention policy.",
	})
)
