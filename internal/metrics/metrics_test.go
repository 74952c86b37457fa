package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(SlotSaves.WithLabelValues("clients", ResultOK))
	SlotSaves.WithLabelValues("clients", ResultOK).Inc()
	after := testutil.ToFloat64(SlotSaves.WithLabelValues("clients", ResultOK))
	if after != before+1 {
		t.Errorf("counter = %v, want %v", after, before+1)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	Escalations.WithLabelValues("1h").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "agencydesk_escalations_total") {
		t.Errorf("metrics output missing escalation counter:\n%s", body)
	}
}
