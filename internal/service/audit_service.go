package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/fgc-kenya/admissions-api/internal/models"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
)

type auditStore interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditService exposes the read side of the append-only audit trail.
type AuditService struct {
	audit  auditStore
	logger *zap.Logger
}

// NewAuditService constructs an AuditService instance.
func NewAuditService(audit auditStore, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{audit: audit, logger: logger}
}

// List returns audit entries matching the filter, newest first.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	entries, total, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}
	return entries, total, nil
}
