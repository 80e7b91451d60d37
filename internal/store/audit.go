package store

import (
	"context"

	"pos-backend/internal/models"
)

// AppendAuditEntry writes an audit entry outside any transaction. Used
// by the soft audit path and by management endpoints.
func (s *Store) AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (action, entity, user_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, entry, query,
		entry.Action, entry.Entity, entry.UserID)
}

// ListAuditEntries retrieves audit entries newest first
func (s *Store) ListAuditEntries(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var entries []models.AuditEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM audit_entries ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	return entries, err
}
