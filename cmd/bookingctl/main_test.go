package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/adventuretogether/booking-backend/pkg/webhook"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writePayload(t *testing.T) (string, []byte) {
	t.Helper()
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded"}`)
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, payload, 0o600))
	return path, payload
}

func TestWebhookSignPrintsVerifiableHeader(t *testing.T) {
	path, payload := writePayload(t)

	out, err := execute(t, "webhook", "sign", "--file", path, "--secret", testSecret)
	require.NoError(t, err)

	prefix := webhook.SignatureHeader + ": "
	require.True(t, strings.HasPrefix(out, prefix), out)
	header := strings.TrimSpace(strings.TrimPrefix(out, prefix))

	_, err = webhook.NewVerifier(testSecret, time.Minute).Verify(payload, header)
	assert.NoError(t, err)
}

func TestWebhookSignPostsToURL(t *testing.T) {
	path, payload := writePayload(t)

	var received []byte
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(webhook.SignatureHeader)
		buf := &bytes.Buffer{}
		_, _ = buf.ReadFrom(r.Body)
		received = buf.Bytes()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"outcome":"ignored"}`))
	}))
	defer server.Close()

	out, err := execute(t, "webhook", "sign", "--file", path, "--secret", testSecret, "--url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "200 OK")
	assert.Contains(t, out, "ignored")
	assert.Equal(t, payload, received)

	_, err = webhook.NewVerifier(testSecret, time.Minute).Verify(received, header)
	assert.NoError(t, err)
}

func TestWebhookSignRequiresSecret(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	path, _ := writePayload(t)

	_, err := execute(t, "webhook", "sign", "--file", path)
	assert.ErrorContains(t, err, "STRIPE_WEBHOOK_SECRET")
}

func TestSecretsCommand(t *testing.T) {
	out, err := execute(t, "secrets")
	require.NoError(t, err)
	assert.Contains(t, out, "JWT_SECRET=")
	assert.Contains(t, out, "JWT_REFRESH_SECRET=")
	assert.Contains(t, out, "STRIPE_WEBHOOK_SECRET=whsec_")
}

func TestInvalidIDsAreRejectedBeforeConnecting(t *testing.T) {
	_, err := execute(t, "audits", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid booking id")

	_, err = execute(t, "reviews", "resolve", "nope")
	assert.ErrorContains(t, err, "invalid audit id")
}

func TestPrintAudits(t *testing.T) {
	bookingID := uuid.New()
	withBooking := models.NewPaymentAudit(models.PaymentEventOverbookingDetected, models.PaymentSourceStripeWebhook).
		SetBooking(bookingID).
		SetPaymentIntent("pi_1").
		SetError("trip capacity exhausted", "overbooked")
	bare := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceStripeWebhook)

	out := &bytes.Buffer{}
	printAudits(out, []*models.PaymentAudit{withBooking, bare})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "EVENT")
	assert.Contains(t, lines[1], bookingID.String())
	assert.Contains(t, lines[1], "pi_1")
	assert.Contains(t, lines[1], "trip capacity exhausted")
	assert.Contains(t, lines[2], "webhook_received")
	assert.Contains(t, lines[2], " - ")
}
