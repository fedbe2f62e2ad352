package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/adventuretogether/booking-backend/pkg/validator"
	"github.com/google/uuid"
)

// Metadata keys written on the payment intent
const (
	MetadataBookingID     = "booking_id"
	MetadataPayloadChunks = "booking_payload_chunks"
	MetadataPayloadPrefix = "booking_payload_"
	MetadataPayloadRef    = "booking_payload_ref"

	// PayloadRefRow means the payload lives on the booking row, not in metadata
	PayloadRefRow = "row"

	payloadVersion = 1
)

// ErrPayloadTooLarge is returned when the encoded payload needs more metadata chunks than allowed
var ErrPayloadTooLarge = errors.New("booking payload exceeds metadata capacity")

// wirePayload is the compact versioned form sent through gateway metadata.
// Keys are short because every metadata value is length-limited.
type wirePayload struct {
	Version         int               `json:"v"`
	BookingID       string            `json:"b"`
	TripID          string            `json:"t"`
	TravelerID      string            `json:"u"`
	BookingDate     string            `json:"d"`
	Participants    []wireParticipant `json:"p"`
	InsuranceType   string            `json:"it"`
	InsuranceAmount float64           `json:"ia"`
	TripCost        float64           `json:"tc"`
	TotalPrice      float64           `json:"tp"`
	Currency        string            `json:"c"`
}

type wireParticipant struct {
	FirstName   string `json:"f"`
	LastName    string `json:"l"`
	DateOfBirth string `json:"d"`
}

// BookingSerializer converts booking payloads to and from gateway metadata
type BookingSerializer struct {
	chunkSize int
	maxChunks int
}

// NewBookingSerializer creates a serializer that splits the encoded payload into
// chunks of at most chunkSize characters, failing past maxChunks
func NewBookingSerializer(chunkSize, maxChunks int) *BookingSerializer {
	return &BookingSerializer{chunkSize: chunkSize, maxChunks: maxChunks}
}

// Encode returns the base64url form of the payload
func (s *BookingSerializer) Encode(payload *models.BookingPayload) (string, error) {
	if err := checkPayload(payload); err != nil {
		return "", &models.SerializationError{Msg: "invalid booking payload", Err: err}
	}

	wire := wirePayload{
		Version:         payloadVersion,
		BookingID:       payload.BookingID.String(),
		TripID:          payload.TripID.String(),
		TravelerID:      payload.TravelerID.String(),
		BookingDate:     payload.BookingDate,
		Participants:    make([]wireParticipant, 0, len(payload.Participants)),
		InsuranceType:   payload.InsuranceType,
		InsuranceAmount: payload.InsuranceAmount,
		TripCost:        payload.TripCost,
		TotalPrice:      payload.TotalPrice,
		Currency:        payload.Currency,
	}
	for _, p := range payload.Participants {
		wire.Participants = append(wire.Participants, wireParticipant{
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			DateOfBirth: p.DateOfBirth,
		})
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return "", &models.SerializationError{Msg: "failed to marshal booking payload", Err: err}
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses an encoded payload, rejecting unknown fields, other versions and invalid content
func (s *BookingSerializer) Decode(encoded string) (*models.BookingPayload, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &models.DeserializationError{Msg: "payload is not valid base64url", Err: err}
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var wire wirePayload
	if err := decoder.Decode(&wire); err != nil {
		return nil, &models.DeserializationError{Msg: "payload does not match schema", Err: err}
	}
	if decoder.More() {
		return nil, &models.DeserializationError{Msg: "trailing data after payload"}
	}
	if wire.Version != payloadVersion {
		return nil, &models.DeserializationError{Msg: fmt.Sprintf("unsupported payload version %d", wire.Version)}
	}

	payload := &models.BookingPayload{
		BookingDate:     wire.BookingDate,
		Participants:    make([]models.ParticipantData, 0, len(wire.Participants)),
		InsuranceType:   wire.InsuranceType,
		InsuranceAmount: wire.InsuranceAmount,
		TripCost:        wire.TripCost,
		TotalPrice:      wire.TotalPrice,
		Currency:        wire.Currency,
	}
	if payload.BookingID, err = uuid.Parse(wire.BookingID); err != nil {
		return nil, &models.DeserializationError{Msg: "invalid booking id", Err: err}
	}
	if payload.TripID, err = uuid.Parse(wire.TripID); err != nil {
		return nil, &models.DeserializationError{Msg: "invalid trip id", Err: err}
	}
	if payload.TravelerID, err = uuid.Parse(wire.TravelerID); err != nil {
		return nil, &models.DeserializationError{Msg: "invalid traveler id", Err: err}
	}
	for _, p := range wire.Participants {
		payload.Participants = append(payload.Participants, models.ParticipantData{
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			DateOfBirth: p.DateOfBirth,
		})
	}

	if err := checkPayload(payload); err != nil {
		return nil, &models.DeserializationError{Msg: "payload failed validation", Err: err}
	}
	return payload, nil
}

// Serialize encodes the payload into gateway metadata
func (s *BookingSerializer) Serialize(payload *models.BookingPayload) (map[string]string, error) {
	encoded, err := s.Encode(payload)
	if err != nil {
		return nil, err
	}

	chunks := (len(encoded) + s.chunkSize - 1) / s.chunkSize
	if chunks > s.maxChunks {
		return nil, &models.SerializationError{
			Msg: fmt.Sprintf("payload needs %d metadata chunks, limit is %d", chunks, s.maxChunks),
			Err: ErrPayloadTooLarge,
		}
	}

	metadata := make(map[string]string, chunks+2)
	metadata[MetadataBookingID] = payload.BookingID.String()
	metadata[MetadataPayloadChunks] = strconv.Itoa(chunks)
	for i := 0; i < chunks; i++ {
		end := (i + 1) * s.chunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		metadata[MetadataPayloadPrefix+strconv.Itoa(i)] = encoded[i*s.chunkSize : end]
	}
	return metadata, nil
}

// Deserialize reassembles and decodes the payload from gateway metadata
func (s *BookingSerializer) Deserialize(metadata map[string]string) (*models.BookingPayload, error) {
	countValue, ok := metadata[MetadataPayloadChunks]
	if !ok {
		return nil, &models.DeserializationError{Msg: "metadata carries no booking payload"}
	}
	count, err := strconv.Atoi(countValue)
	if err != nil || count < 1 || count > s.maxChunks {
		return nil, &models.DeserializationError{Msg: fmt.Sprintf("invalid payload chunk count %q", countValue)}
	}

	var sb strings.Builder
	for i := 0; i < count; i++ {
		chunk, ok := metadata[MetadataPayloadPrefix+strconv.Itoa(i)]
		if !ok || chunk == "" {
			return nil, &models.DeserializationError{Msg: fmt.Sprintf("payload chunk %d is missing", i)}
		}
		sb.WriteString(chunk)
	}

	payload, err := s.Decode(sb.String())
	if err != nil {
		return nil, err
	}

	if ref, ok := metadata[MetadataBookingID]; ok && ref != payload.BookingID.String() {
		return nil, &models.DeserializationError{Msg: "metadata booking id does not match payload"}
	}
	return payload, nil
}

// PayloadStoredOnRow reports whether metadata only references a payload kept on the booking row
func PayloadStoredOnRow(metadata map[string]string) bool {
	return metadata[MetadataPayloadRef] == PayloadRefRow
}

// RowReferenceMetadata is the metadata used when the payload is too large to travel with the intent
func RowReferenceMetadata(bookingID uuid.UUID) map[string]string {
	return map[string]string{
		MetadataBookingID:  bookingID.String(),
		MetadataPayloadRef: PayloadRefRow,
	}
}

// checkPayload verifies a payload is complete enough to materialize a booking
func checkPayload(p *models.BookingPayload) error {
	if p == nil {
		return errors.New("payload is nil")
	}

	var errs validator.FieldErrors
	if p.BookingID == uuid.Nil {
		errs.AddError("booking_id", validator.ErrEmptyValue)
	}
	if p.TripID == uuid.Nil {
		errs.AddError("trip_id", validator.ErrEmptyValue)
	}
	if p.TravelerID == uuid.Nil {
		errs.AddError("traveler_id", validator.ErrEmptyValue)
	}
	if _, err := time.Parse(validator.DateLayout, p.BookingDate); err != nil {
		errs.AddError("booking_date", validator.ErrInvalidDate)
	}
	if len(p.Participants) == 0 {
		errs.Add("participants", "must contain at least one participant")
	}
	for i, participant := range p.Participants {
		prefix := fmt.Sprintf("participants[%d]", i)
		if strings.TrimSpace(participant.FirstName) == "" {
			errs.AddError(prefix+".first_name", validator.ErrEmptyValue)
		}
		if strings.TrimSpace(participant.LastName) == "" {
			errs.AddError(prefix+".last_name", validator.ErrEmptyValue)
		}
		if _, err := time.Parse(validator.DateLayout, participant.DateOfBirth); err != nil {
			errs.AddError(prefix+".date_of_birth", validator.ErrInvalidDate)
		}
	}
	if p.Currency == "" {
		errs.AddError("currency", validator.ErrEmptyValue)
	}
	for _, amount := range []struct {
		field string
		value float64
	}{
		{"insurance_amount", p.InsuranceAmount},
		{"trip_cost", p.TripCost},
		{"total_price", p.TotalPrice},
	} {
		if amount.value < 0 || math.IsNaN(amount.value) || math.IsInf(amount.value, 0) {
			errs.Add(amount.field, "must be a non-negative amount")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
