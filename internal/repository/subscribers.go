package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

func (s *SQLiteDB) UpsertSubscriber(ctx context.Context, sub *models.Subscriber) error {
	locationIDs, err := marshalJSON(sub.LocationIDs)
	if err != nil {
		return fmt.Errorf("error encoding location ids: %w", err)
	}

	var lat, lng sql.NullFloat64
	if sub.Location != nil {
		lat = sql.NullFloat64{Float64: sub.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: sub.Location.Longitude, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, lat, lng, location_ids, phone, push_token, email, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			location_ids = excluded.location_ids,
			phone = excluded.phone,
			push_token = excluded.push_token,
			email = excluded.email,
			language = excluded.language`,
		sub.ID, lat, lng, locationIDs, sub.Phone, sub.PushToken, sub.Email,
		sub.Language, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error upserting subscriber: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetSubscriber(ctx context.Context, id string) (*models.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lat, lng, location_ids, phone, push_token, email, language, created_at
		FROM subscribers WHERE id = ?`, id)

	sub, err := scanSubscriber(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning subscriber: %w", err)
	}
	return sub, nil
}

func (s *SQLiteDB) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lat, lng, location_ids, phone, push_token, email, language, created_at
		FROM subscribers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("error listing subscribers: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("error scanning subscriber: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func scanSubscriber(scan func(dest ...any) error) (*models.Subscriber, error) {
	var (
		sub         models.Subscriber
		lat, lng    sql.NullFloat64
		locationIDs sql.NullString
	)
	if err := scan(&sub.ID, &lat, &lng, &locationIDs, &sub.Phone, &sub.PushToken,
		&sub.Email, &sub.Language, &sub.CreatedAt); err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		sub.Location = &models.LatLng{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if err := unmarshalJSON(locationIDs.String, &sub.LocationIDs); err != nil {
		return nil, err
	}
	return &sub, nil
}
