// Package api provides HTTP API handlers for the dashboard backend.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/opsboard/pkg/alerts"
	"github.com/yourorg/opsboard/pkg/auth"
	"github.com/yourorg/opsboard/pkg/bottleneck"
	"github.com/yourorg/opsboard/pkg/dashboard"
	"github.com/yourorg/opsboard/pkg/db/models"
	"github.com/yourorg/opsboard/pkg/errs"
	"github.com/yourorg/opsboard/pkg/events"
	"github.com/yourorg/opsboard/pkg/workflow"
)

// Handlers contains all API handlers
type Handlers struct {
	logger       *zap.Logger
	engine       *workflow.Engine
	eventManager *events.Manager
	analyzer     *bottleneck.Analyzer
	alertManager *alerts.Manager
	ruleEngine   *alerts.RuleEngine
	aggregator   *dashboard.Aggregator
}

// NewHandlers creates new API handlers
func NewHandlers(
	logger *zap.Logger,
	engine *workflow.Engine,
	eventManager *events.Manager,
	analyzer *bottleneck.Analyzer,
	alertManager *alerts.Manager,
	ruleEngine *alerts.RuleEngine,
	aggregator *dashboard.Aggregator,
) *Handlers {
	return &Handlers{
		logger:       logger,
		engine:       engine,
		eventManager: eventManager,
		analyzer:     analyzer,
		alertManager: alertManager,
		ruleEngine:   ruleEngine,
		aggregator:   aggregator,
	}
}

// respondError maps domain errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	switch {
	case errs.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errs.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errs.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errs.IsInvalidState(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Health check handlers

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Readiness returns the readiness status
func (h *Handlers) Readiness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ready": true,
	})
}

// Workflow catalog handlers

// ListWorkflowTypes lists active workflow types, optionally annotated with
// live instance counts
func (h *Handlers) ListWorkflowTypes(c *gin.Context) {
	ctx := c.Request.Context()

	if c.Query("with_counts") == "true" {
		summaries, err := h.engine.Catalog().ActiveTypesWithCounts(ctx)
		if err != nil {
			h.logger.Error("failed to list workflow types", zap.Error(err))
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"workflow_types": summaries})
		return
	}

	types, err := h.engine.Catalog().ActiveTypes(ctx)
	if err != nil {
		h.logger.Error("failed to list workflow types", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflow_types": types})
}

// ListWorkflowSteps lists the ordered steps of a workflow type
func (h *Handlers) ListWorkflowSteps(c *gin.Context) {
	ctx := c.Request.Context()
	typeID := c.Param("type_id")

	steps, err := h.engine.Catalog().Steps(ctx, typeID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

// Workflow instance handlers

// StartWorkflow starts a new workflow instance
func (h *Handlers) StartWorkflow(c *gin.Context) {
	ctx := c.Request.Context()

	var req workflow.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ActorID = auth.GetUserIDFromGin(c)

	instance, err := h.engine.Start(ctx, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, instance)
}

// GetWorkflow gets a workflow instance by ID
func (h *Handlers) GetWorkflow(c *gin.Context) {
	ctx := c.Request.Context()

	instance, err := h.engine.Get(ctx, c.Param("instance_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

// ListActiveWorkflows lists running workflow instances
func (h *Handlers) ListActiveWorkflows(c *gin.Context) {
	ctx := c.Request.Context()

	instances, err := h.engine.ListActive(ctx, c.Query("department_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflows": instances, "total": len(instances)})
}

// ListOverdueWorkflows lists workflows past their alert threshold
func (h *Handlers) ListOverdueWorkflows(c *gin.Context) {
	ctx := c.Request.Context()

	instances, err := h.engine.ListOverdue(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflows": instances, "total": len(instances)})
}

type commentRequest struct {
	Comment string `json:"comment"`
}

// AdvanceWorkflow moves a workflow to its next step
func (h *Handlers) AdvanceWorkflow(c *gin.Context) {
	ctx := c.Request.Context()

	var req commentRequest
	c.ShouldBindJSON(&req)

	instance, err := h.engine.Advance(ctx, c.Param("instance_id"), auth.GetUserIDFromGin(c), req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

// PauseWorkflow pauses a running workflow
func (h *Handlers) PauseWorkflow(c *gin.Context) {
	ctx := c.Request.Context()

	instance, err := h.engine.Pause(ctx, c.Param("instance_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

// ResumeWorkflow resumes a paused workflow
func (h *Handlers) ResumeWorkflow(c *gin.Context) {
	ctx := c.Request.Context()

	instance, err := h.engine.Resume(ctx, c.Param("instance_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

type abandonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// AbandonWorkflow abandons a workflow with a reason
func (h *Handlers) AbandonWorkflow(c *gin.Context) {
	ctx := c.Request.Context()

	var req abandonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instance, err := h.engine.Abandon(ctx, c.Param("instance_id"), auth.GetUserIDFromGin(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

// GetWorkflowProgress returns the progress summary of a workflow
func (h *Handlers) GetWorkflowProgress(c *gin.Context) {
	ctx := c.Request.Context()

	progress, err := h.engine.GetProgress(ctx, c.Param("instance_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// ListWorkflowTransitions returns the transition history of a workflow
func (h *Handlers) ListWorkflowTransitions(c *gin.Context) {
	ctx := c.Request.Context()

	transitions, err := h.engine.Transitions(ctx, c.Param("instance_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transitions": transitions})
}

// Micro-event handlers

// ReportEvent reports a new micro-event
func (h *Handlers) ReportEvent(c *gin.Context) {
	ctx := c.Request.Context()

	var req events.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ReporterID = auth.GetUserIDFromGin(c)

	event, err := h.eventManager.Report(ctx, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

// GetEvent gets an event by ID
func (h *Handlers) GetEvent(c *gin.Context) {
	ctx := c.Request.Context()

	event, err := h.eventManager.Get(ctx, c.Param("event_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// ListEvents lists events, optionally filtered by department and status
func (h *Handlers) ListEvents(c *gin.Context) {
	ctx := c.Request.Context()
	limit := getIntParam(c, "limit", 50)

	list, err := h.eventManager.List(ctx,
		c.Query("department_id"),
		models.EventStatus(c.Query("status")),
		limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": list, "total": len(list)})
}

// ClaimEvent claims a reported event
func (h *Handlers) ClaimEvent(c *gin.Context) {
	ctx := c.Request.Context()

	claims := auth.GetClaimsFromGin(c)
	actorID, actorName := "", "staff"
	if claims != nil {
		actorID = claims.UserID
		if claims.Name != "" {
			actorName = claims.Name
		}
	}

	event, err := h.eventManager.Claim(ctx, c.Param("event_id"), actorID, actorName)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// ResolveEvent resolves an event with a comment
func (h *Handlers) ResolveEvent(c *gin.Context) {
	ctx := c.Request.Context()

	var req commentRequest
	c.ShouldBindJSON(&req)

	event, err := h.eventManager.Resolve(ctx, c.Param("event_id"), auth.GetUserIDFromGin(c), req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// IgnoreEvent dismisses an event
func (h *Handlers) IgnoreEvent(c *gin.Context) {
	ctx := c.Request.Context()

	event, err := h.eventManager.Ignore(ctx, c.Param("event_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// MarkEventRecurrent flags an event as recurring
func (h *Handlers) MarkEventRecurrent(c *gin.Context) {
	ctx := c.Request.Context()

	event, err := h.eventManager.MarkRecurrent(ctx, c.Param("event_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

type addCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

// AddEventComment appends a comment to an event
func (h *Handlers) AddEventComment(c *gin.Context) {
	ctx := c.Request.Context()

	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.eventManager.AddComment(ctx, c.Param("event_id"), auth.GetUserIDFromGin(c), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, comment)
}

// DepartmentEventStats returns event statistics for a department
func (h *Handlers) DepartmentEventStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.eventManager.Stats(ctx, c.Param("department_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Bottleneck handlers

// DetectBottlenecks runs bottleneck detection over the requested window
func (h *Handlers) DetectBottlenecks(c *gin.Context) {
	ctx := c.Request.Context()

	opts := bottleneck.DetectOptions{
		DepartmentID: c.Query("department_id"),
		WindowDays:   getIntParam(c, "window_days", 0),
	}

	findings, err := h.analyzer.Detect(ctx, opts)
	if err != nil {
		h.logger.Error("bottleneck detection failed", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bottlenecks": findings, "total": len(findings)})
}

// ListBottlenecks lists active bottleneck findings
func (h *Handlers) ListBottlenecks(c *gin.Context) {
	ctx := c.Request.Context()

	analyses, err := h.analyzer.ListActive(ctx, c.Query("department_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bottlenecks": analyses, "total": len(analyses)})
}

// GetBottleneck gets a bottleneck analysis by ID
func (h *Handlers) GetBottleneck(c *gin.Context) {
	ctx := c.Request.Context()

	analysis, err := h.analyzer.Get(ctx, c.Param("bottleneck_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// ReviewBottleneck moves a finding under review
func (h *Handlers) ReviewBottleneck(c *gin.Context) {
	ctx := c.Request.Context()

	analysis, err := h.analyzer.Review(ctx, c.Param("bottleneck_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// ConfirmBottleneck confirms a finding as a real problem
func (h *Handlers) ConfirmBottleneck(c *gin.Context) {
	ctx := c.Request.Context()

	analysis, err := h.analyzer.Confirm(ctx, c.Param("bottleneck_id"), auth.GetUserIDFromGin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// ResolveBottleneck closes a confirmed finding
func (h *Handlers) ResolveBottleneck(c *gin.Context) {
	ctx := c.Request.Context()

	analysis, err := h.analyzer.Resolve(ctx, c.Param("bottleneck_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// DismissBottleneck marks a finding as a false positive
func (h *Handlers) DismissBottleneck(c *gin.Context) {
	ctx := c.Request.Context()

	analysis, err := h.analyzer.FalsePositive(ctx, c.Param("bottleneck_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// Alert handlers

// ListAlerts lists the newest alerts visible to the caller
func (h *Handlers) ListAlerts(c *gin.Context) {
	ctx := c.Request.Context()

	claims := auth.GetClaimsFromGin(c)
	opts := alerts.ListOptions{
		UnreadOnly: c.Query("unread") == "true",
	}
	if claims != nil {
		opts.Admin = claims.Admin
		opts.DepartmentID = claims.DepartmentID
	}

	list, err := h.alertManager.ListForUser(ctx, opts)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": list, "total": len(list)})
}

// ViewAlert marks an alert as viewed
func (h *Handlers) ViewAlert(c *gin.Context) {
	ctx := c.Request.Context()

	alert, err := h.alertManager.MarkViewed(ctx, c.Param("alert_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

// AcknowledgeAlert acknowledges an alert
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	ctx := c.Request.Context()

	alert, err := h.alertManager.Acknowledge(ctx, c.Param("alert_id"), auth.GetUserIDFromGin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

// ResolveAlert closes an alert as handled
func (h *Handlers) ResolveAlert(c *gin.Context) {
	ctx := c.Request.Context()

	alert, err := h.alertManager.Resolve(ctx, c.Param("alert_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

// IgnoreAlert closes an alert without action
func (h *Handlers) IgnoreAlert(c *gin.Context) {
	ctx := c.Request.Context()

	alert, err := h.alertManager.Ignore(ctx, c.Param("alert_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

// ListSubscriptions lists the caller's notification subscriptions
func (h *Handlers) ListSubscriptions(c *gin.Context) {
	ctx := c.Request.Context()

	subs, err := h.alertManager.ListSubscriptions(ctx, auth.GetUserIDFromGin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// UpsertSubscription creates or replaces the caller's subscription for a channel
func (h *Handlers) UpsertSubscription(c *gin.Context) {
	ctx := c.Request.Context()

	var req alerts.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.alertManager.UpsertSubscription(ctx, auth.GetUserIDFromGin(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// Alert rule handlers

// ListAlertRules lists all alert rules
func (h *Handlers) ListAlertRules(c *gin.Context) {
	ctx := c.Request.Context()

	rules, err := h.ruleEngine.ListRules(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": rules, "total": len(rules)})
}

// CreateAlertRule creates a new alert rule
func (h *Handlers) CreateAlertRule(c *gin.Context) {
	ctx := c.Request.Context()

	var req alerts.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.CreatedByID = auth.GetUserIDFromGin(c)

	rule, err := h.ruleEngine.CreateRule(ctx, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateAlertRule changes the tunable fields of a rule
func (h *Handlers) UpdateAlertRule(c *gin.Context) {
	ctx := c.Request.Context()

	var req alerts.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.ruleEngine.UpdateRule(ctx, c.Param("rule_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// ActivateAlertRule enables a rule
func (h *Handlers) ActivateAlertRule(c *gin.Context) {
	ctx := c.Request.Context()

	rule, err := h.ruleEngine.SetRuleActive(ctx, c.Param("rule_id"), true)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeactivateAlertRule disables a rule
func (h *Handlers) DeactivateAlertRule(c *gin.Context) {
	ctx := c.Request.Context()

	rule, err := h.ruleEngine.SetRuleActive(ctx, c.Param("rule_id"), false)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// EvaluateAlertRules runs all active rules once
func (h *Handlers) EvaluateAlertRules(c *gin.Context) {
	ctx := c.Request.Context()

	raised, err := h.ruleEngine.EvaluateAll(ctx)
	if err != nil {
		h.logger.Error("rule evaluation failed", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts_raised": raised})
}

// Dashboard handlers

// GetDashboard returns the composite dashboard payload
func (h *Handlers) GetDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	days := getIntParam(c, "trend_days", 7)

	dash, err := h.aggregator.GetDashboard(ctx, days)
	if err != nil {
		h.logger.Error("failed to build dashboard", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dash)
}

// GetOverview returns the hospital-wide headline counters
func (h *Handlers) GetOverview(c *gin.Context) {
	ctx := c.Request.Context()

	overview, err := h.aggregator.GetOverview(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// GetDepartmentBreakdown returns per-department counters
func (h *Handlers) GetDepartmentBreakdown(c *gin.Context) {
	ctx := c.Request.Context()

	breakdown, err := h.aggregator.DepartmentBreakdown(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"departments": breakdown})
}

// GetTrends returns daily activity counts, oldest first
func (h *Handlers) GetTrends(c *gin.Context) {
	ctx := c.Request.Context()
	days := getIntParam(c, "days", 7)

	trends, err := h.aggregator.Trends(ctx, days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trends": trends})
}

// Snapshot persists today's counters to the daily stat tables
func (h *Handlers) Snapshot(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.aggregator.Snapshot(ctx); err != nil {
		h.logger.Error("snapshot failed", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// getIntParam parses an integer query parameter with a default
func getIntParam(c *gin.Context, name string, defaultValue int) int {
	if value := c.Query(name); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
