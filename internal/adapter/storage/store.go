package storage

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"maarga/internal/domain/alert"
	"maarga/internal/domain/room"
	"maarga/internal/service/stats"
)

// Store bundles the individual stores behind the engine's mirror interface.
type Store struct {
	Locations *LocationStore
	Alerts    *AlertStore
	Trips     *TripStore
}

// New creates the storage adapter set on one connection pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{
		Locations: NewLocationStore(db),
		Alerts:    NewAlertStore(db),
		Trips:     NewTripStore(db),
	}
}

// AppendLocation mirrors one location sample.
func (s *Store) AppendLocation(ctx context.Context, sample room.LocationSample) error {
	return s.Locations.Append(ctx, sample)
}

// AppendViolation mirrors one raised violation.
func (s *Store) AppendViolation(ctx context.Context, v alert.Violation) error {
	return s.Alerts.AppendViolation(ctx, v)
}

// SaveAlert mirrors an emergency alert.
func (s *Store) SaveAlert(ctx context.Context, a alert.Emergency) error {
	return s.Alerts.SaveAlert(ctx, a)
}

// SaveTrip mirrors finished trip statistics.
func (s *Store) SaveTrip(ctx context.Context, t stats.Trip) error {
	return s.Trips.SaveTrip(ctx, t)
}
