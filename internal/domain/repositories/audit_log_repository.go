package repositories

import (
	"context"

	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
)

// AuditLogRepository is the append-only change log sink
type AuditLogRepository interface {
	Append(ctx context.Context, entry *entities.AuditEntry) error
}
