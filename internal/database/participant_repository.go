package database

import (
	"context"
	"fmt"
	"time"

	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ParticipantRepository handles participant database operations
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository creates a new ParticipantRepository
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// CreateBatchTx inserts all participants of a booking inside the finalize transaction
func (r *ParticipantRepository) CreateBatchTx(ctx context.Context, tx *sqlx.Tx, participants []models.Participant) error {
	query := `
		INSERT INTO participants (id, booking_id, first_name, last_name, date_of_birth, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now()
	for i := range participants {
		p := &participants[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt = now

		if _, err := tx.ExecContext(ctx, query, p.ID, p.BookingID, p.FirstName, p.LastName, p.DateOfBirth, p.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert participant %d: %w", i, err)
		}
	}
	return nil
}

// ListByBooking returns the participants of a booking in insertion order
func (r *ParticipantRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Participant, error) {
	query := `
		SELECT id, booking_id, first_name, last_name, date_of_birth, created_at
		FROM participants
		WHERE booking_id = $1
		ORDER BY created_at, last_name, first_name`

	participants := make([]models.Participant, 0)
	if err := r.db.SelectContext(ctx, &participants, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}
