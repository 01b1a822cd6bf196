package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface used by the service. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AuditStatus captures the outcome of an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one mutating operation against a family tree.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	TreeID    string
	Actor     string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan is ended once per traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Operation names reported to loggers, metrics, tracers and audit recorders.
const (
	OpCreateFamilyTree          = "create_family_tree"
	OpGetFamilyTree             = "get_family_tree"
	OpListFamilyTrees           = "list_family_trees"
	OpAddCollaborator           = "add_collaborator"
	OpRemoveCollaborator        = "remove_collaborator"
	OpReconcileStatistics       = "reconcile_statistics"
	OpTreeDocument              = "tree_document"
	OpCreatePerson              = "create_person"
	OpGetPerson                 = "get_person"
	OpListPersons               = "list_persons"
	OpUpdatePerson              = "update_person"
	OpDeletePerson              = "delete_person"
	OpCreateRelationship        = "create_relationship"
	OpListRelationships         = "list_relationships"
	OpDeleteRelationship        = "delete_relationship"
	OpDeleteRelationshipBetween = "delete_relationship_between"
)

type auditMetadata struct {
	entity EntityType
	action Action
}

var auditedOperations = map[string]auditMetadata{
	OpCreateFamilyTree:          {EntityFamilyTree, ActionCreate},
	OpAddCollaborator:           {EntityFamilyTree, ActionUpdate},
	OpRemoveCollaborator:        {EntityFamilyTree, ActionUpdate},
	OpReconcileStatistics:       {EntityFamilyTree, ActionUpdate},
	OpCreatePerson:              {EntityPerson, ActionCreate},
	OpUpdatePerson:              {EntityPerson, ActionUpdate},
	OpDeletePerson:              {EntityPerson, ActionDelete},
	OpCreateRelationship:        {EntityRelationship, ActionCreate},
	OpDeleteRelationship:        {EntityRelationship, ActionDelete},
	OpDeleteRelationshipBetween: {EntityRelationship, ActionDelete},
}

// operation tracks one service call for metrics, tracing, audit and logging.
type operation struct {
	svc     *Service
	name    string
	treeID  string
	actorID string
	started time.Time
	span    TraceSpan
}

func (s *Service) begin(ctx context.Context, name, treeID, actorID string) (context.Context, *operation) {
	ctx, span := s.tracer.Start(ctx, name)
	return ctx, &operation{
		svc:     s,
		name:    name,
		treeID:  treeID,
		actorID: actorID,
		started: s.clock.Now(),
		span:    span,
	}
}

// end reports the outcome. entityID may be empty when the operation failed
// before an entity was resolved.
func (o *operation) end(ctx context.Context, entityID string, err error) {
	s := o.svc
	duration := s.clock.Now().Sub(o.started)
	s.metrics.Observe(ctx, o.name, err == nil, duration)
	o.span.End(err)

	if err != nil {
		s.logger.Warn("operation failed",
			"operation", o.name,
			"tree_id", o.treeID,
			"actor", o.actorID,
			"entity_id", entityID,
			"code", string(codeOf(err)),
			"error", err.Error(),
		)
	} else {
		s.logger.Debug("operation completed",
			"operation", o.name,
			"tree_id", o.treeID,
			"entity_id", entityID,
			"duration", duration,
		)
	}

	meta, ok := auditedOperations[o.name]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: o.name,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		TreeID:    o.treeID,
		Actor:     o.actorID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) logViolations(treeID string, res Result) {
	for _, v := range res.Violations {
		s.logger.Warn("rule violation",
			"rule", v.Rule,
			"severity", string(v.Severity),
			"tree_id", treeID,
			"entity", string(v.Entity),
			"entity_id", v.EntityID,
			"message", v.Message,
		)
	}
}
