package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CodesIssued counts verification codes issued, across backends.
	CodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "codes_issued_total",
		Help:      "Verification codes issued.",
	})

	// VerifyAttempts counts code submissions by outcome.
	VerifyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "verify_attempts_total",
		Help:      "Code verification attempts by outcome.",
	}, []string{"outcome"})
)
