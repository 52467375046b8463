package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

func (s *SQLiteDB) CreateAlert(ctx context.Context, a *models.Alert) error {
	localized, err := marshalJSON(a.Localized)
	if err != nil {
		return fmt.Errorf("error encoding localized content: %w", err)
	}
	polygon, err := marshalJSON(a.Target.Polygon)
	if err != nil {
		return fmt.Errorf("error encoding polygon: %w", err)
	}
	locationIDs, err := marshalJSON(a.Target.LocationIDs)
	if err != nil {
		return fmt.Errorf("error encoding location ids: %w", err)
	}
	channels, err := marshalJSON(a.Channels)
	if err != nil {
		return fmt.Errorf("error encoding channels: %w", err)
	}

	var centerLat, centerLng sql.NullFloat64
	if a.Target.Center != nil {
		centerLat = sql.NullFloat64{Float64: a.Target.Center.Latitude, Valid: true}
		centerLng = sql.NullFloat64{Float64: a.Target.Center.Longitude, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, type, severity, status, title, message, localized,
			center_lat, center_lng, radius_km, polygon, location_ids, channels,
			expires_at, created_at, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.Severity, a.Status, a.Title, a.Message, localized,
		centerLat, centerLng, a.Target.RadiusKm, polygon, locationIDs, channels,
		nullTime(a.ExpiresAt), a.CreatedAt, nullTime(a.IssuedAt),
	)
	if err != nil {
		return fmt.Errorf("error inserting alert: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, severity, status, title, message, localized,
			center_lat, center_lng, radius_km, polygon, location_ids, channels,
			expires_at, created_at, issued_at
		FROM alerts WHERE id = ?`, id)

	var (
		a                    models.Alert
		localized            sql.NullString
		centerLat, centerLng sql.NullFloat64
		polygon              sql.NullString
		locationIDs          sql.NullString
		channels             string
		expiresAt, issuedAt  sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Type, &a.Severity, &a.Status, &a.Title, &a.Message,
		&localized, &centerLat, &centerLng, &a.Target.RadiusKm, &polygon,
		&locationIDs, &channels, &expiresAt, &a.CreatedAt, &issuedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning alert: %w", err)
	}

	if err := unmarshalJSON(localized.String, &a.Localized); err != nil {
		return nil, fmt.Errorf("error decoding localized content: %w", err)
	}
	if err := unmarshalJSON(polygon.String, &a.Target.Polygon); err != nil {
		return nil, fmt.Errorf("error decoding polygon: %w", err)
	}
	if err := unmarshalJSON(locationIDs.String, &a.Target.LocationIDs); err != nil {
		return nil, fmt.Errorf("error decoding location ids: %w", err)
	}
	if err := unmarshalJSON(channels, &a.Channels); err != nil {
		return nil, fmt.Errorf("error decoding channels: %w", err)
	}

	if centerLat.Valid && centerLng.Valid {
		a.Target.Center = &models.LatLng{Latitude: centerLat.Float64, Longitude: centerLng.Float64}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	if issuedAt.Valid {
		t := issuedAt.Time
		a.IssuedAt = &t
	}

	return &a, nil
}

func (s *SQLiteDB) UpdateAlertStatus(ctx context.Context, id string, from, to models.AlertStatus, issuedAt *time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, issued_at = COALESCE(?, issued_at)
		WHERE id = ? AND status = ?`,
		to, nullTime(issuedAt), id, from)
	if err != nil {
		return false, fmt.Errorf("error updating alert status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteDB) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE alerts SET status = ?
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
		RETURNING id`,
		models.AlertStatusExpired, models.AlertStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("error expiring alerts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalJSON(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case map[string]string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case []models.LatLng:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
