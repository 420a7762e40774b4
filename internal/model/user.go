// Package model defines domain entities for the application.
package model

import "time"

// User owns API keys, jobs and a credits balance.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

// CreditReason labels a ledger entry.
type CreditReason string

const (
	CreditReasonSignup     CreditReason = "signup_grant"
	CreditReasonJobCharge  CreditReason = "job_charge"
	CreditReasonJobRefund  CreditReason = "job_refund"
	CreditReasonAdminGrant CreditReason = "admin_grant"
)

// CreditEntry records one change to a user's balance.
type CreditEntry struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Delta     int          `json:"delta"`
	Reason    CreditReason `json:"reason"`
	JobID     *string      `json:"job_id,omitempty"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// AccountResponse is returned by GET /api/v1/me.
type AccountResponse struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Credits int    `json:"credits"`
}

// CreditGrantRequest is the admin body for granting credits.
type CreditGrantRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason,omitempty"`
}
