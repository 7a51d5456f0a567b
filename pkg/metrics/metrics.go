// Package metrics exposes Prometheus instrumentation for the service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkflowsStarted counts workflow instances started
	WorkflowsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsboard_workflows_started_total",
		Help: "Total number of workflow instances started.",
	})

	// WorkflowsCompleted counts workflow instances completed
	WorkflowsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsboard_workflows_completed_total",
		Help: "Total number of workflow instances completed.",
	})

	// ActiveWorkflows tracks workflow instances in a non-terminal status
	ActiveWorkflows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opsboard_workflows_active",
		Help: "Number of workflow instances currently in a non-terminal status.",
	})

	// EventsReported counts micro-events reported, labeled by severity
	EventsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsboard_events_reported_total",
		Help: "Total number of micro-events reported.",
	}, []string{"severity"})

	// AlertsCreated counts alerts created, labeled by priority
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsboard_alerts_created_total",
		Help: "Total number of alerts created.",
	}, []string{"priority"})

	// BottlenecksDetected counts bottleneck analyses created, labeled by severity
	BottlenecksDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsboard_bottlenecks_detected_total",
		Help: "Total number of bottleneck analyses created.",
	}, []string{"severity"})

	// RuleEvaluations counts alert rule evaluation runs
	RuleEvaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opsboard_rule_evaluations_total",
		Help: "Total number of alert rule evaluation runs.",
	})
)

// Handler returns a gin handler serving the Prometheus metrics endpoint
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
