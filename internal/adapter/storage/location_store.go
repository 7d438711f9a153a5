package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"maarga/internal/domain/geo"
	"maarga/internal/domain/room"
)

// LocationStore implements append/query storage for location samples. The
// in-memory registry stays authoritative for live reads; this store is the
// asynchronous history mirror.
type LocationStore struct {
	db *pgxpool.Pool
}

// NewLocationStore creates a new location store
func NewLocationStore(db *pgxpool.Pool) *LocationStore {
	return &LocationStore{
		db: db,
	}
}

// Append writes one location sample to the history.
func (s *LocationStore) Append(ctx context.Context, sample room.LocationSample) error {
	query := `
		INSERT INTO locations (
			room_code, participant_id, participant_name,
			latitude, longitude, speed, heading, accuracy, captured_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.db.Exec(
		ctx,
		query,
		sample.RoomCode,
		sample.ParticipantID,
		sample.Name,
		sample.Coordinate.Latitude,
		sample.Coordinate.Longitude,
		sample.Speed,
		sample.Heading,
		sample.Accuracy,
		sample.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("error inserting location: %w", err)
	}

	return nil
}

// History returns the most recent samples for one participant in a room,
// newest first.
func (s *LocationStore) History(ctx context.Context, roomCode, participantID string, limit int) ([]room.LocationSample, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT room_code, participant_id, participant_name,
		       latitude, longitude, speed, heading, accuracy, captured_at
		FROM locations
		WHERE room_code = $1 AND participant_id = $2
		ORDER BY captured_at DESC
		LIMIT $3
	`

	rows, err := s.db.Query(ctx, query, roomCode, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying location history: %w", err)
	}
	defer rows.Close()

	var samples []room.LocationSample
	for rows.Next() {
		var sample room.LocationSample
		var lat, lng float64

		err := rows.Scan(
			&sample.RoomCode,
			&sample.ParticipantID,
			&sample.Name,
			&lat,
			&lng,
			&sample.Speed,
			&sample.Heading,
			&sample.Accuracy,
			&sample.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning location: %w", err)
		}

		sample.Coordinate = geo.Coordinate{Latitude: lat, Longitude: lng}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}

	return samples, nil
}
