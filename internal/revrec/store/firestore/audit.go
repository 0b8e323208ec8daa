package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	"github.com/odyssey-erp/revrec/internal/revrec/engine"
)

// AuditLogger writes engine events into the audit_logs collection.
type AuditLogger struct {
	client *firestore.Client
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(client *firestore.Client) *AuditLogger {
	return &AuditLogger{client: client}
}

// Record persists the event.
func (l *AuditLogger) Record(ctx context.Context, event engine.AuditEvent) error {
	if l == nil || l.client == nil {
		return errors.New("audit logger not initialised")
	}
	if event.TenantID == "" || event.Action == "" || event.Entity == "" || event.EntityID == "" {
		return errors.New("audit log requires tenant/action/entity/entity_id")
	}
	at := any(firestore.ServerTimestamp)
	if !event.At.IsZero() {
		at = event.At.UTC()
	}
	_, err := l.client.Collection(AuditCollection).NewDoc().Set(ctx, map[string]any{
		"tenantId":   event.TenantID,
		"action":     event.Action,
		"entity":     event.Entity,
		"entityId":   event.EntityID,
		"meta":       event.Meta,
		"occurredAt": at,
	})
	return err
}
