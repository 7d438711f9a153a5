package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"maarga/internal/service/stats"
)

// TripStore implements storage for finished trip statistics.
type TripStore struct {
	db *pgxpool.Pool
}

// NewTripStore creates a new trip store
func NewTripStore(db *pgxpool.Pool) *TripStore {
	return &TripStore{
		db: db,
	}
}

// SaveTrip writes or updates a member's trip statistics.
func (s *TripStore) SaveTrip(ctx context.Context, t stats.Trip) error {
	query := `
		INSERT INTO trip_stats (
			room_code, participant_id, total_distance,
			max_speed, avg_speed, violations, samples,
			started_at, last_sample_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9
		)
		ON CONFLICT (room_code, participant_id) DO UPDATE
		SET
			total_distance = $3,
			max_speed = $4,
			avg_speed = $5,
			violations = $6,
			samples = $7,
			last_sample_at = $9
	`

	_, err := s.db.Exec(
		ctx,
		query,
		t.RoomCode,
		t.ParticipantID,
		t.TotalDistance,
		t.MaxSpeed,
		t.AvgSpeed,
		t.Violations,
		t.Samples,
		t.StartedAt,
		t.LastSampleAt,
	)

	if err != nil {
		return fmt.Errorf("error saving trip stats: %w", err)
	}

	return nil
}
