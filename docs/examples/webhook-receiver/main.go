// Command webhook-receiver is a minimal endpoint for AI Video Pro job
// events. It verifies each delivery and logs the job outcome.
//
//	AVP_WEBHOOK_SECRET=whsec_... go run ./docs/examples/webhook-receiver
//
// Register http://<host>:9000/webhook as the endpoint URL (the API must run
// with WEBHOOK_ALLOW_INSECURE=true to accept plain http).
package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/webhook"
)

const maxBody = 1 << 20

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	secret := os.Getenv("AVP_WEBHOOK_SECRET")
	if secret == "" {
		logger.Error("AVP_WEBHOOK_SECRET is required")
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /webhook", receive(webhook.NewVerifier(webhook.HashSecret(secret)), logger))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{Addr: ":9000", Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// receive answers 2xx only for verified events; anything else makes the
// API retry the delivery.
func receive(v webhook.Verifier, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := v.Verify(r.Header.Get(webhook.HeaderSignature), r.Header.Get(webhook.HeaderTimestamp), body); err != nil {
			logger.Warn("rejected delivery", "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var event model.JobEvent
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		logger.Info("job event",
			"event", event.EventType,
			"delivery_id", r.Header.Get(webhook.HeaderDeliveryID),
			"job_id", event.Data.JobID,
			"result_url", event.Data.ResultURL,
			"error", event.Data.Error,
		)
		w.WriteHeader(http.StatusNoContent)
	})
}
