package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/revrec/internal/revrec/engine"
)

// AuditLogger writes engine events into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the event.
func (l *AuditLogger) Record(ctx context.Context, event engine.AuditEvent) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if event.TenantID == "" || event.Action == "" || event.Entity == "" || event.EntityID == "" {
		return errors.New("audit log requires tenant/action/entity/entity_id")
	}
	meta := event.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var at any
	if !event.At.IsZero() {
		at = event.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (tenant_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, NOW()))`, event.TenantID, event.Action, event.Entity, event.EntityID, metaJSON, at)
	return err
}
