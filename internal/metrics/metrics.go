// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SlotSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agencydesk_slot_saves_total",
		Help: "Remote slot writes by slot and result",
	}, []string{"slot", "result"})

	SlotSaveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agencydesk_slot_save_duration_seconds",
		Help:    "Remote slot write latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"slot"})

	// SlotSavesCoalesced counts save requests folded into another write.
	SlotSavesCoalesced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agencydesk_slot_saves_coalesced_total",
		Help: "Save requests satisfied by a write issued for another request",
	}, []string{"slot"})

	MirrorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agencydesk_mirror_failures_total",
		Help: "Failed local mirror writes by slot",
	}, []string{"slot"})

	Reconciles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agencydesk_reconcile_total",
		Help: "Startup slot resolutions by slot and winning source",
	}, []string{"slot", "source"})

	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agencydesk_escalations_total",
		Help: "Reminder escalations fired by threshold",
	}, []string{"threshold"})
)

const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
