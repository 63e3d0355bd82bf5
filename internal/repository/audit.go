package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/swebuk/portal-api/internal/models"
)

const insertAuditLogQuery = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`

// insertAuditLog writes an audit row on a DB or inside a caller's transaction.
func insertAuditLog(ctx context.Context, ext sqlx.ExtContext, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if _, err := sqlx.NamedExecContext(ctx, ext, insertAuditLogQuery, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// rollback is deferred by transactional methods; it is a no-op after commit.
func rollback(tx *sqlx.Tx, err *error) {
	if *err != nil {
		_ = tx.Rollback()
	}
}
