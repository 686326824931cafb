package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clinicbook/pkg/logger"
)

const stripeSignatureTolerance = 5 * time.Minute

// StripeSignatureVerification verifies the Stripe-Signature header on
// incoming webhook requests. The header carries a timestamp and one or more
// v1 signatures over "<timestamp>.<raw body>".
func StripeSignatureVerification(webhookSecret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Stripe-Signature")
			if header == "" {
				logAndRejectWebhook(w, log, r, "Missing Stripe-Signature header")
				return
			}

			timestamp, signatures, err := parseStripeSignature(header)
			if err != nil {
				logAndRejectWebhook(w, log, r, err.Error())
				return
			}

			if time.Since(time.Unix(timestamp, 0)) > stripeSignatureTolerance {
				logAndRejectWebhook(w, log, r, "Webhook timestamp outside tolerance")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				logAndRejectWebhook(w, log, r, "Failed to read request body")
				return
			}

			if !verifyStripeSignature(timestamp, body, signatures, webhookSecret) {
				logAndRejectWebhook(w, log, r, "Invalid webhook signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseStripeSignature(header string) (int64, []string, error) {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, errInvalidSignatureHeader
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, errInvalidSignatureHeader
	}

	return timestamp, signatures, nil
}

func verifyStripeSignature(timestamp int64, body []byte, signatures []string, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

type signatureHeaderError struct{}

func (signatureHeaderError) Error() string { return "Malformed Stripe-Signature header" }

var errInvalidSignatureHeader = signatureHeaderError{}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	return body, nil
}

func logAndRejectWebhook(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	requestID := ""
	if rid := r.Context().Value(RequestIDKey); rid != nil {
		requestID = rid.(string)
	}

	log.Warn("Stripe webhook verification failed",
		"request_id", requestID,
		"reason", reason,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"Unauthorized"}`))
}
