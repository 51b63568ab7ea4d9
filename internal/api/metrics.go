package api

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

type apiMetrics struct {
	startedAtUnix        int64
	ticketsCreatedTotal  atomic.Int64
	messagesTotal        atomic.Int64
	smartRepliesTotal    atomic.Int64
	aiDegradedTotal      atomic.Int64
	retentionAlertsTotal atomic.Int64
	rateLimitedTotal     atomic.Int64
	exportsArchivedTotal atomic.Int64
}

func newAPIMetrics() *apiMetrics {
	return &apiMetrics{
		startedAtUnix: time.Now().Unix(),
	}
}

func (m *apiMetrics) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)

	uptimeSeconds := time.Now().Unix() - m.startedAtUnix
	_, _ = fmt.Fprintf(w, "# HELP freedesk_uptime_seconds Process uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE freedesk_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "freedesk_uptime_seconds %d\n", uptimeSeconds)

	_, _ = fmt.Fprintf(w, "# HELP freedesk_tickets_created_total Tickets created through the public API.\n")
	_, _ = fmt.Fprintf(w, "# TYPE freedesk_tickets_created_total counter\n")
	_, _ = fmt.Fprintf(w, "freedesk_tickets_created_total %d\n", m.ticketsCreatedTotal.Load())

	_, _ = fmt.Fprintf(w, "# HELP freedesk_messages_total Messages appended to tickets.\n")
	_, _ = fmt.Fprintf(w, "# TYPE freedesk_messages_total counter\n")
	_, _ = fmt.Fprintf(w, "freedesk_messages_total %d\n", m.messagesTotal.Load())

	_, _ = fmt.Fprintf(w, "# HELP freedesk_smart_replies_total Replies served by the canned-reply matcher.\n")
	_, _ = fmt.Fprintf(w, "# TYPE freedesk_smart_replies_total counter\n")
	_, _ = fmt.Fprintf(w, "freedesk_smart_replies_total %d\n", m.smartRepliesTotal.Load())

	_, _ = fmt.Fprintf(w, "# HELP freedesk_ai_degraded_total AI replies replaced by the degraded copy.\n")
	_, _ = fmt.Fprintf(w, "# TYPE freedesk_ai_degraded_total counter\n")
	_, _ = fmt.Fprintf(w, "freedesk_ai_degraded_total %d\n", m.aiDegradedTotal.Load())

	_, _ = fmt.Fprintf(w, "# HELP freedesk_retention_alerts_total Churn alerts pushed to the retention stream.\n")
	_, _ = fmt.Fprintf(w, "# TYPE freedesk_retention_alerts_total counter\n")
	_, _ = fmt.Fprintf(w, "freedesk_retention_alerts_total %d\n", m.retentionAlertsTotal.Load())

	_, _ = fmt.Fprintf(w, "# HELP freedesk_rate_limited_total Requests rejected due to rate limiting.\n")
	_, _ = fmt.Fprintf(w, "# TYPE freedesk_rate_limited_total counter\n")
	_, _ = fmt.Fprintf(w, "freedesk_rate_limited_total %d\n", m.rateLimitedTotal.Load())

	_, _ = fmt.Fprintf(w, "# HELP freedesk_exports_archived_total CSV exports copied to the archive bucket.\n")
	_, _ = fmt.Fprintf(w, "# TYPE freedesk_exports_archived_total counter\n")
	_, _ = fmt.Fprintf(w, "freedesk_exports_archived_total %d\n", m.exportsArchivedTotal.Load())
}
