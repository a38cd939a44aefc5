package repository

import (
	"context"

	"inkwell/backend/internal/audit/domain"
)

// Repository persists audit events.
type Repository interface {
	Create(ctx context.Context, e *domain.AuditLog) error
}
