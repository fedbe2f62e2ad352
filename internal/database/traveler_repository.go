package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TravelerRepository looks up travelers owned by the identity service
type TravelerRepository struct {
	db *sqlx.DB
}

// NewTravelerRepository creates a new TravelerRepository
func NewTravelerRepository(db *sqlx.DB) *TravelerRepository {
	return &TravelerRepository{db: db}
}

// GetByID retrieves a traveler. Returns nil when absent.
func (r *TravelerRepository) GetByID(ctx context.Context, travelerID uuid.UUID) (*models.Traveler, error) {
	query := `
		SELECT id, email, first_name, last_name, active, created_at
		FROM travelers
		WHERE id = $1`

	var traveler models.Traveler
	err := r.db.GetContext(ctx, &traveler, query, travelerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get traveler: %w", err)
	}
	return &traveler, nil
}
