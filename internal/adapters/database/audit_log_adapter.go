package database

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

const auditLogTable = "audit_log"

// AuditLogAdapter appends change log entries to the audit_log table
type AuditLogAdapter struct {
	db *sqlx.DB
}

// NewAuditLogAdapter creates a new audit log adapter
func NewAuditLogAdapter(db *sqlx.DB) *AuditLogAdapter {
	return &AuditLogAdapter{db: db}
}

var _ repositories.AuditLogRepository = (*AuditLogAdapter)(nil)

// Append stores one entry, stamping its creation time when unset
func (a *AuditLogAdapter) Append(ctx context.Context, entry *entities.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query, args, err := dialect.Insert(auditLogTable).
		Prepared(true).
		Rows(goqu.Record{
			"author":      entry.Author,
			"action":      string(entry.Action),
			"record_id":   entry.RecordID,
			"description": entry.Description,
			"created_dt":  entry.CreatedAt,
		}).
		Returning("id").
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build audit insert", err)
	}

	if err := a.db.QueryRowxContext(ctx, query, args...).Scan(&entry.ID); err != nil {
		return apperrors.NewInternalError("failed to append audit entry", err)
	}
	return nil
}
