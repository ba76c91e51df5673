package dto

import (
	"time"

	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a healthy response with the current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// PaymentListResponse wraps the payment log listing.
type PaymentListResponse struct {
	Payments []*storage.PaymentNotification `json:"payments"`
	Count    int                            `json:"count"`
}

// ArchivePaymentResponse reports the outcome of a manual archive.
type ArchivePaymentResponse struct {
	Message string `json:"message"`
}

// ReconcileResponse reports what a triggered reconciliation tick did.
type ReconcileResponse struct {
	Fetched int `json:"fetched"`
	Matched int `json:"matched"`
	NoMatch int `json:"no_match"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// ReminderResponse reports what a triggered reminder sweep did.
type ReminderResponse struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}
