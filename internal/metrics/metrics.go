package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated counts successfully created attendance sessions.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_created_total",
		Help: "Number of attendance sessions created.",
	})

	// MarksAccepted counts attendance records written.
	MarksAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_marks_accepted_total",
		Help: "Number of attendance marks accepted.",
	})

	// MarksRejected counts rejected mark attempts by reason.
	MarksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_marks_rejected_total",
		Help: "Number of attendance marks rejected.",
	}, []string{"reason"})
)
