package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const tripColumns = `
	id, title, price_per_participant, currency, max_participants,
	min_participants, remaining_capacity, state, bookings_close_at`

// TripRepository reads and mutates the booking-related columns of the trip catalog
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

// GetByID retrieves a trip. Returns nil when absent.
func (r *TripRepository) GetByID(ctx context.Context, tripID uuid.UUID) (*models.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	var trip models.Trip
	err := r.db.GetContext(ctx, &trip, query, tripID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

// LockForUpdateTx locks the trip row so capacity can be decremented safely
func (r *TripRepository) LockForUpdateTx(ctx context.Context, tx *sqlx.Tx, tripID uuid.UUID) (*models.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1 FOR UPDATE`

	var trip models.Trip
	err := tx.GetContext(ctx, &trip, query, tripID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock trip: %w", err)
	}
	return &trip, nil
}

// UpdateCapacityTx writes the new remaining capacity and state of a locked trip
func (r *TripRepository) UpdateCapacityTx(ctx context.Context, tx *sqlx.Tx, trip *models.Trip) error {
	query := `
		UPDATE trips
		SET remaining_capacity = $2, state = $3, updated_at = NOW()
		WHERE id = $1`

	if _, err := tx.ExecContext(ctx, query, trip.ID, trip.RemainingCapacity, trip.State); err != nil {
		return fmt.Errorf("failed to update trip capacity: %w", err)
	}
	return nil
}
