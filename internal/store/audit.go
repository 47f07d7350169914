package store

import (
	"log/slog"
	"time"

	"github.com/delphitvs/trainhub/internal/model"
)

// Audit appends an administrative action to the audit log. Audit failures
// are logged but never fail the action itself.
func (s *Store) Audit(userID int64, action model.AuditAction, entityType, entityID, details string) {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (user_id, action, entity_type, entity_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, action, entityType, entityID, details, time.Now(),
	)
	if err != nil {
		slog.Error("failed to write audit entry", "action", action, "entity", entityType, "error", err)
	}
}

// ListAuditEntries returns the most recent audit entries, newest first.
func (s *Store) ListAuditEntries(limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, user_id, action, entity_type, entity_id, details, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
