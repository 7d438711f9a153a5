package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"maarga/internal/domain/alert"
)

// AlertStore implements storage for emergency alerts and geofence
// violation records.
type AlertStore struct {
	db *pgxpool.Pool
}

// NewAlertStore creates a new alert store
func NewAlertStore(db *pgxpool.Pool) *AlertStore {
	return &AlertStore{
		db: db,
	}
}

// SaveAlert writes or updates an emergency alert.
func (s *AlertStore) SaveAlert(ctx context.Context, a alert.Emergency) error {
	query := `
		INSERT INTO emergency_alerts (
			id, room_code, participant_id, participant_name,
			kind, status, latitude, longitude, description,
			created_at, resolved_at, resolved_by
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12
		)
		ON CONFLICT (id) DO UPDATE
		SET
			status = $6,
			resolved_at = $11,
			resolved_by = $12
	`

	var resolvedBy *string
	if a.ResolvedBy != "" {
		resolvedBy = &a.ResolvedBy
	}

	_, err := s.db.Exec(
		ctx,
		query,
		a.ID,
		a.RoomCode,
		a.ParticipantID,
		a.Name,
		string(a.Kind),
		string(a.Status),
		a.Location.Latitude,
		a.Location.Longitude,
		a.Description,
		a.CreatedAt,
		a.ResolvedAt,
		resolvedBy,
	)

	if err != nil {
		return fmt.Errorf("error saving alert: %w", err)
	}

	return nil
}

// AppendViolation writes one raised geofence violation record.
func (s *AlertStore) AppendViolation(ctx context.Context, v alert.Violation) error {
	query := `
		INSERT INTO geofence_violations (
			room_code, participant_id, participant_name, distance,
			leader_latitude, leader_longitude,
			latitude, longitude, raised_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9
		)
	`

	_, err := s.db.Exec(
		ctx,
		query,
		v.RoomCode,
		v.ParticipantID,
		v.Name,
		v.Distance,
		v.LeaderLocation.Latitude,
		v.LeaderLocation.Longitude,
		v.Location.Latitude,
		v.Location.Longitude,
		v.RaisedAt,
	)

	if err != nil {
		return fmt.Errorf("error inserting violation: %w", err)
	}

	return nil
}
