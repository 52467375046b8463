package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

func (s *SQLiteDB) PublishFeedEntry(ctx context.Context, a *models.Alert, at time.Time) error {
	// One feed entry per alert; republishing from later web deliveries is a
	// no-op.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO web_feed (id, alert_id, title, message, severity, type, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (alert_id) DO NOTHING`,
		uuid.NewString(), a.ID, a.Title, a.Message, a.Severity, a.Type, at,
	)
	if err != nil {
		return fmt.Errorf("error publishing feed entry: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListFeed(ctx context.Context, limit int) ([]FeedEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, title, message, severity, type, published_at
		FROM web_feed ORDER BY published_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing feed: %w", err)
	}
	defer rows.Close()

	var entries []FeedEntry
	for rows.Next() {
		var e FeedEntry
		if err := rows.Scan(&e.ID, &e.AlertID, &e.Title, &e.Message, &e.Severity,
			&e.Type, &e.PublishedAt); err != nil {
			return nil, fmt.Errorf("error scanning feed entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
