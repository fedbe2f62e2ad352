package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload(participants int) *models.BookingPayload {
	p := &models.BookingPayload{
		BookingID:       uuid.New(),
		TripID:          uuid.New(),
		TravelerID:      uuid.New(),
		BookingDate:     "2026-03-01",
		InsuranceType:   "full",
		InsuranceAmount: 75.37,
		TripCost:        333.33,
		TotalPrice:      408.7,
		Currency:        "eur",
	}
	for i := 0; i < participants; i++ {
		p.Participants = append(p.Participants, models.ParticipantData{
			FirstName:   fmt.Sprintf("Zoë-%d", i),
			LastName:    "O'Connor Müller",
			DateOfBirth: "1990-01-31",
		})
	}
	return p
}

func TestBookingSerializerRoundTrip(t *testing.T) {
	serializer := NewBookingSerializer(500, 40)

	payloads := map[string]*models.BookingPayload{
		"single participant": samplePayload(1),
		"many participants":  samplePayload(25),
		"no insurance": func() *models.BookingPayload {
			p := samplePayload(2)
			p.InsuranceType = ""
			p.InsuranceAmount = 0
			return p
		}(),
		"fractional amounts": func() *models.BookingPayload {
			p := samplePayload(3)
			p.TotalPrice = 0.1 + 0.2
			return p
		}(),
		"non latin characters": func() *models.BookingPayload {
			p := samplePayload(1)
			p.Participants[0].LastName = "山田"
			return p
		}(),
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			encoded, err := serializer.Encode(payload)
			require.NoError(t, err)
			decoded, err := serializer.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, payload, decoded)

			metadata, err := serializer.Serialize(payload)
			require.NoError(t, err)
			restored, err := serializer.Deserialize(metadata)
			require.NoError(t, err)
			assert.Equal(t, payload, restored)
		})
	}
}

func TestBookingSerializerChunking(t *testing.T) {
	serializer := NewBookingSerializer(100, 40)
	payload := samplePayload(10)

	metadata, err := serializer.Serialize(payload)
	require.NoError(t, err)

	encoded, err := serializer.Encode(payload)
	require.NoError(t, err)
	expectedChunks := (len(encoded) + 99) / 100
	require.Greater(t, expectedChunks, 1)

	assert.Equal(t, fmt.Sprint(expectedChunks), metadata[MetadataPayloadChunks])
	assert.Equal(t, payload.BookingID.String(), metadata[MetadataBookingID])
	assert.Len(t, metadata, expectedChunks+2)
	for key, value := range metadata {
		assert.LessOrEqual(t, len(value), 100, key)
	}
	assert.False(t, strings.Contains(encoded, "="), "encoding must not be padded")
}

func TestBookingSerializerPayloadTooLarge(t *testing.T) {
	serializer := NewBookingSerializer(50, 3)

	_, err := serializer.Serialize(samplePayload(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))

	var serErr *models.SerializationError
	assert.True(t, errors.As(err, &serErr))
}

func TestBookingSerializerRejectsMalformedInput(t *testing.T) {
	serializer := NewBookingSerializer(500, 40)

	t.Run("Missing ids", func(t *testing.T) {
		p := samplePayload(1)
		p.TripID = uuid.Nil
		_, err := serializer.Encode(p)
		var serErr *models.SerializationError
		assert.True(t, errors.As(err, &serErr))
	})

	t.Run("No participants", func(t *testing.T) {
		p := samplePayload(0)
		_, err := serializer.Serialize(p)
		assert.True(t, models.IsIntegrity(err))
	})

	t.Run("Nil payload", func(t *testing.T) {
		_, err := serializer.Encode(nil)
		assert.Error(t, err)
	})
}

func TestBookingSerializerRejectsCorruptPayload(t *testing.T) {
	serializer := NewBookingSerializer(500, 40)
	payload := samplePayload(2)
	valid, err := serializer.Serialize(payload)
	require.NoError(t, err)

	encodeJSON := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}
	ids := fmt.Sprintf(`"b":"%s","t":"%s","u":"%s"`, uuid.New(), uuid.New(), uuid.New())
	participant := `"p":[{"f":"Ada","l":"Lovelace","d":"1990-12-10"}]`
	amounts := `"it":"basic","ia":20,"tc":200,"tp":220,"c":"eur","d":"2026-03-01"`

	tests := []struct {
		name     string
		metadata map[string]string
	}{
		{"No payload keys", map[string]string{MetadataBookingID: payload.BookingID.String()}},
		{"Missing chunk", map[string]string{MetadataPayloadChunks: "2", MetadataPayloadPrefix + "0": valid[MetadataPayloadPrefix+"0"]}},
		{"Bad chunk count", map[string]string{MetadataPayloadChunks: "many"}},
		{"Chunk count over limit", map[string]string{MetadataPayloadChunks: "41"}},
		{"Bad base64", map[string]string{MetadataPayloadChunks: "1", MetadataPayloadPrefix + "0": "%%%not-base64%%%"}},
		{"Not json", map[string]string{MetadataPayloadChunks: "1", MetadataPayloadPrefix + "0": encodeJSON("hello")}},
		{"Unknown field", map[string]string{MetadataPayloadChunks: "1", MetadataPayloadPrefix + "0": encodeJSON(`{"v":1,` + ids + `,` + participant + `,` + amounts + `,"extra":true}`)}},
		{"Wrong version", map[string]string{MetadataPayloadChunks: "1", MetadataPayloadPrefix + "0": encodeJSON(`{"v":2,` + ids + `,` + participant + `,` + amounts + `}`)}},
		{"Invalid participant", map[string]string{MetadataPayloadChunks: "1", MetadataPayloadPrefix + "0": encodeJSON(`{"v":1,` + ids + `,"p":[{"f":"","l":"Lovelace","d":"1990-12-10"}],` + amounts + `}`)}},
		{"Invalid id", map[string]string{MetadataPayloadChunks: "1", MetadataPayloadPrefix + "0": encodeJSON(`{"v":1,"b":"nope","t":"x","u":"y",` + participant + `,` + amounts + `}`)}},
		{"Booking reference mismatch", func() map[string]string {
			m := map[string]string{}
			for k, v := range valid {
				m[k] = v
			}
			m[MetadataBookingID] = uuid.New().String()
			return m
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serializer.Deserialize(tt.metadata)
			require.Error(t, err)
			var deErr *models.DeserializationError
			assert.True(t, errors.As(err, &deErr), "got %T: %v", err, err)
			assert.True(t, models.IsIntegrity(err))
		})
	}
}

func TestRowReferenceMetadata(t *testing.T) {
	id := uuid.New()
	metadata := RowReferenceMetadata(id)

	assert.True(t, PayloadStoredOnRow(metadata))
	assert.Equal(t, id.String(), metadata[MetadataBookingID])
	assert.False(t, PayloadStoredOnRow(map[string]string{MetadataBookingID: id.String()}))
}
