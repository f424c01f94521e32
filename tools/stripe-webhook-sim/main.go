package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "studio-service base url")
		evtType     = flag.String("type", getenv("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		studio      = flag.String("studio-id", getenv("STUDIO_ID", ""), "studio_id metadata")
		appointment = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointment_id metadata")
		payment     = flag.String("payment", getenv("PAYMENT", "full"), "payment metadata (deposit|full)")
		secret      = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*studio) == "" || strings.TrimSpace(*appointment) == "" {
		fatal("STUDIO_ID and APPOINTMENT_ID are required")
	}

	now := time.Now().UTC()
	eventID := fmt.Sprintf("evt_test_%d", now.UnixNano())
	metadata := map[string]any{
		"studio_id":      *studio,
		"appointment_id": *appointment,
		"payment":        *payment,
	}

	payload, err := buildEventJSON(eventID, *evtType, now, metadata)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("event=%s status=%d body=%s\n", eventID, resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, metadata map[string]any) ([]byte, error) {
	var object map[string]any
	switch eventType {
	case "checkout.session.completed":
		object = map[string]any{
			"id":             "cs_test_123",
			"object":         "checkout.session",
			"payment_status": "paid",
			"metadata":       metadata,
		}
	case "payment_intent.succeeded":
		object = map[string]any{
			"id":       "pi_test_123",
			"object":   "payment_intent",
			"status":   "succeeded",
			"metadata": metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": "2024-06-20",
		"data":        map[string]any{"object": object},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
