package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fgc-kenya/admissions-api/internal/models"
)

// AuditRepository writes and reads the append-only audit trail. No
// update or delete methods exist; compliance tooling reads this table
// directly.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new instance of AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, admin_id, details, ip_address, user_agent, created_at)
		VALUES (:id, :action, :entity_type, :entity_id, :user_id, :admin_id, :details, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// List returns audit entries matching the filter with total count.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	baseQuery := `FROM audit_logs WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)+1))
		args = append(args, filter.EntityType)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, action, entity_type, entity_id, user_id, admin_id, details, ip_address, user_agent, created_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	return logs, total, nil
}
