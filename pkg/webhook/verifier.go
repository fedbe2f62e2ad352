package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
)

// SignatureHeader is the header carrying the gateway signature
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is the accepted distance between the signed timestamp and now
const DefaultTolerance = 5 * time.Minute

const signingVersion = "v1"

var (
	// ErrSignatureInvalid is the parent of every verification failure
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrMissingHeader indicates the signature header is empty
	ErrMissingHeader = fmt.Errorf("%w: missing signature header", ErrSignatureInvalid)

	// ErrInvalidHeader indicates the header could not be parsed
	ErrInvalidHeader = fmt.Errorf("%w: malformed signature header", ErrSignatureInvalid)

	// ErrNoValidSignature indicates no v1 signature matched the payload
	ErrNoValidSignature = fmt.Errorf("%w: no matching signature", ErrSignatureInvalid)

	// ErrTimestampOutsideTolerance indicates a replayed or badly skewed event
	ErrTimestampOutsideTolerance = fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)

	// ErrInvalidPayload indicates a correctly signed body that is not an event
	ErrInvalidPayload = errors.New("webhook payload is not a valid event")
)

// Verifier checks gateway webhook signatures.
// The secret is only ever used as an HMAC key; it never appears in errors.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier for the given endpoint secret
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// WithClock replaces the time source (tests and replay tooling)
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify authenticates payload against header and decodes the event.
// No event is returned unless the signature and timestamp are both valid.
func (v *Verifier) Verify(payload []byte, header string) (*stripe.Event, error) {
	if err := v.VerifySignature(payload, header); err != nil {
		return nil, err
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrInvalidPayload)
	}

	return &event, nil
}

// VerifySignature checks the header without decoding the payload
func (v *Verifier) VerifySignature(payload []byte, header string) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingHeader
	}

	timestamp, signatures, err := parseHeader(header)
	if err != nil {
		return err
	}

	expected := computeSignature(v.secret, timestamp, payload)

	matched := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrNoValidSignature
	}

	skew := v.now().Sub(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return ErrTimestampOutsideTolerance
	}

	return nil
}

// Sign produces a signature header for payload at time t
func Sign(payload []byte, secret string, t time.Time) string {
	sig := computeSignature([]byte(secret), t.Unix(), payload)
	return fmt.Sprintf("t=%d,%s=%s", t.Unix(), signingVersion, hex.EncodeToString(sig))
}

func computeSignature(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// parseHeader reads "t=<unix>,v1=<hex>[,v1=<hex>...]"; unknown schemes are ignored
func parseHeader(header string) (int64, [][]byte, error) {
	var timestamp int64
	var haveTimestamp bool
	var signatures [][]byte

	for _, item := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			return 0, nil, ErrInvalidHeader
		}

		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, nil, ErrInvalidHeader
			}
			timestamp = ts
			haveTimestamp = true
		case signingVersion:
			sig, err := hex.DecodeString(parts[1])
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if !haveTimestamp {
		return 0, nil, ErrInvalidHeader
	}
	if len(signatures) == 0 {
		return 0, nil, ErrNoValidSignature
	}

	return timestamp, signatures, nil
}
