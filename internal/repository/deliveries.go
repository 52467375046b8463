package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

func (s *SQLiteDB) UpsertPending(ctx context.Context, alertID, subscriberID string, ch models.Channel) (string, bool, error) {
	// Insert the triple, or reset it when the previous attempt failed. The
	// WHERE on the conflict clause makes the upsert a no-op for records that
	// are pending, in flight, or already sent or better.
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO deliveries (id, alert_id, subscriber_id, channel, status, attempt_count, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (alert_id, subscriber_id, channel) DO UPDATE SET
			status = ?,
			error_message = '',
			attempt_count = deliveries.attempt_count + 1
		WHERE deliveries.status = ?
		RETURNING id`,
		uuid.NewString(), alertID, subscriberID, ch, models.DeliveryStatusPending, time.Now(),
		models.DeliveryStatusPending, models.DeliveryStatusFailed,
	)

	var id string
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		// Triple exists in a non-failed state; look the ID up for the caller.
		row := s.db.QueryRowContext(ctx, `
			SELECT id FROM deliveries WHERE alert_id = ? AND subscriber_id = ? AND channel = ?`,
			alertID, subscriberID, ch)
		if err := row.Scan(&id); err != nil {
			return "", false, fmt.Errorf("error looking up delivery: %w", err)
		}
		return id, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error upserting delivery: %w", err)
	}
	return id, true, nil
}

func (s *SQLiteDB) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET status = ? WHERE id = ? AND status = ?`,
		models.DeliveryStatusSending, id, models.DeliveryStatusPending)
	if err != nil {
		return false, fmt.Errorf("error claiming delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteDB) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, sent_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.DeliveryStatusSent, at, id,
		models.DeliveryStatusPending, models.DeliveryStatusSending)
	if err != nil {
		return fmt.Errorf("error marking delivery sent: %w", err)
	}
	return nil
}

func (s *SQLiteDB) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, delivered_at = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		models.DeliveryStatusDelivered, at, id,
		models.DeliveryStatusPending, models.DeliveryStatusSending, models.DeliveryStatusSent)
	if err != nil {
		return fmt.Errorf("error marking delivery delivered: %w", err)
	}
	return nil
}

func (s *SQLiteDB) MarkFailed(ctx context.Context, id, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, error_message = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.DeliveryStatusFailed, errorMessage, id,
		models.DeliveryStatusPending, models.DeliveryStatusSending)
	if err != nil {
		return fmt.Errorf("error marking delivery failed: %w", err)
	}
	return nil
}

func (s *SQLiteDB) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, read_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.DeliveryStatusRead, at, id,
		models.DeliveryStatusSent, models.DeliveryStatusDelivered)
	if err != nil {
		return false, fmt.Errorf("error marking delivery read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteDB) GetDelivery(ctx context.Context, id string) (*models.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, alert_id, subscriber_id, channel, status, error_message,
			attempt_count, created_at, sent_at, delivered_at, read_at
		FROM deliveries WHERE id = ?`, id)

	rec, err := scanDelivery(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning delivery: %w", err)
	}
	return rec, nil
}

func (s *SQLiteDB) ListByAlert(ctx context.Context, alertID string, f DeliveryFilter) ([]models.DeliveryRecord, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, alert_id, subscriber_id, channel, status, error_message,
			attempt_count, created_at, sent_at, delivered_at, read_at
		FROM deliveries WHERE alert_id = ?`)
	args := []any{alertID}

	if f.Channel != nil {
		query.WriteString(" AND channel = ?")
		args = append(args, *f.Channel)
	}
	if f.Status != nil {
		if *f.Status == models.DeliveryStatusPending {
			// The in-flight claim marker is an internal detail of pending.
			query.WriteString(" AND status IN (?, ?)")
			args = append(args, models.DeliveryStatusPending, models.DeliveryStatusSending)
		} else {
			query.WriteString(" AND status = ?")
			args = append(args, *f.Status)
		}
	}
	if f.Since != nil {
		query.WriteString(" AND created_at >= ?")
		args = append(args, *f.Since)
	}
	if f.Until != nil {
		query.WriteString(" AND created_at <= ?")
		args = append(args, *f.Until)
	}
	query.WriteString(" ORDER BY created_at, id")
	if f.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query.WriteString(" OFFSET ?")
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("error listing deliveries: %w", err)
	}
	defer rows.Close()

	var records []models.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("error scanning delivery: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *SQLiteDB) ListFailed(ctx context.Context, alertID string) ([]models.DeliveryRecord, error) {
	failed := models.DeliveryStatusFailed
	return s.ListByAlert(ctx, alertID, DeliveryFilter{Status: &failed})
}

func (s *SQLiteDB) CountByAlert(ctx context.Context, alertID string) (map[models.Channel]map[models.DeliveryStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, status, COUNT(*) FROM deliveries
		WHERE alert_id = ? GROUP BY channel, status`, alertID)
	if err != nil {
		return nil, fmt.Errorf("error counting deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Channel]map[models.DeliveryStatus]int)
	for rows.Next() {
		var (
			ch models.Channel
			st models.DeliveryStatus
			n  int
		)
		if err := rows.Scan(&ch, &st, &n); err != nil {
			return nil, err
		}
		if counts[ch] == nil {
			counts[ch] = make(map[models.DeliveryStatus]int)
		}
		counts[ch][st] = n
	}
	return counts, rows.Err()
}

func scanDelivery(scan func(dest ...any) error) (*models.DeliveryRecord, error) {
	var (
		rec                         models.DeliveryRecord
		sentAt, deliveredAt, readAt sql.NullTime
	)
	if err := scan(&rec.ID, &rec.AlertID, &rec.SubscriberID, &rec.Channel,
		&rec.Status, &rec.ErrorMessage, &rec.AttemptCount, &rec.CreatedAt,
		&sentAt, &deliveredAt, &readAt); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		rec.SentAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		rec.DeliveredAt = &t
	}
	if readAt.Valid {
		t := readAt.Time
		rec.ReadAt = &t
	}
	return &rec, nil
}
