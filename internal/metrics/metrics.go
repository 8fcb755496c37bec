package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// HTTP
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Ledger
	RenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subledger_renewals_total",
			Help: "Successful subscription renewals",
		},
		[]string{"source"},
	)
	RenewalFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subledger_renewal_failures_total",
			Help: "Rejected subscription renewals by reason",
		},
		[]string{"source", "reason"},
	)
	AutomationChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subledger_automation_checks_total",
			Help: "Automation eligibility probes by outcome",
		},
		[]string{"eligible"},
	)
	WithdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subledger_withdrawals_total",
			Help: "Custody withdrawals by outcome",
		},
		[]string{"status"},
	)
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subledger_events_published_total",
			Help: "Events delivered to sinks",
		},
		[]string{"sink", "status"},
	)

	// Relay
	RelayCandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subledger_relay_candidates_total",
			Help: "Candidates processed by the relay by outcome",
		},
		[]string{"outcome"},
	)
)

// InitMetrics registers every collector with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsInFlight)

	prometheus.MustRegister(RenewalsTotal)
	prometheus.MustRegister(RenewalFailuresTotal)
	prometheus.MustRegister(AutomationChecksTotal)
	prometheus.MustRegister(WithdrawalsTotal)
	prometheus.MustRegister(EventsPublishedTotal)

	prometheus.MustRegister(collectors.NewGoCollector())
	prometheus.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// InitRelayMetrics registers the collectors the relay process reports.
func InitRelayMetrics() {
	prometheus.MustRegister(RelayCandidatesTotal)
	prometheus.MustRegister(collectors.NewGoCollector())
}
