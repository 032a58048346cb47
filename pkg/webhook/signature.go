package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SignatureHeader is the header the payment gateway puts its body signature in.
const SignatureHeader = "X-Paystack-Signature"

// DefaultMaxBodySize caps how much of an inbound webhook body is read.
const DefaultMaxBodySize int64 = 1 << 20

// Sign computes the hex encoded HMAC-SHA512 of payload keyed with secret.
func Sign(secret string, payload []byte) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	h := hmac.New(sha512.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifySignature checks signature against the HMAC-SHA512 of the exact raw payload.
// The comparison is constant-time.
func VerifySignature(secret string, payload []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	expected, err := Sign(secret, payload)
	if err != nil {
		return err
	}

	// Gateways send lowercase hex; normalise so only the digest itself is compared
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}

// ReadBody reads the raw request body up to maxBytes. The exact bytes are
// returned untouched because the signature covers them byte for byte.
func ReadBody(r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	if r.Body == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, ErrPayloadTooLarge
	}
	return body, nil
}
