package sink

import (
	"context"
	"fmt"
	"log/slog"

	"capital-bot/domain/event"
	"capital-bot/repositories"
)

// AuditSink mirrors domain events into the BadgerDB audit trail.
type AuditSink struct {
	repository repositories.AuditRepository
	log        *slog.Logger
}

func NewAuditSink(repository repositories.AuditRepository, log *slog.Logger) AuditSink {
	return AuditSink{repository: repository, log: log}
}

func (s AuditSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.OperationApplied:
		return s.repository.Store(repositories.AuditEntry{
			Type:    evt.EventType(),
			GroupID: evt.GroupID,
			Action:  evt.Action,
			User:    evt.User,
			Detail:  operationDetail(evt),
			At:      evt.At,
		})
	case event.UnauthorizedAccess:
		user := evt.User
		return s.repository.Store(repositories.AuditEntry{
			Type:    evt.EventType(),
			GroupID: evt.GroupID,
			Action:  "UNAUTHORIZED",
			User:    &user,
			Detail:  evt.Body,
			At:      evt.At,
		})
	case event.HandlerFailure:
		return s.repository.Store(repositories.AuditEntry{
			Type:    evt.EventType(),
			GroupID: evt.GroupID,
			Action:  "HANDLER_FAILURE",
			Detail:  fmt.Sprintf("%s: %s", evt.Context, evt.Err),
			At:      evt.At,
		})
	default:
		s.log.Debug(fmt.Sprintf("Audit sink skips event : %v", evt))
		return nil
	}
}

func operationDetail(evt event.OperationApplied) string {
	detail := fmt.Sprintf("before=%v after=%v", evt.Before, evt.After)
	if evt.Expression != "" {
		detail += " expr=" + evt.Expression
	}
	if evt.Comment != "" {
		detail += " comment=" + evt.Comment
	}
	return detail
}
