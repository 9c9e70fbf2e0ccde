package models

import "time"

// PaymentStatus is the review state of a proof-of-payment record.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

// IsDecision reports whether s is a status a reviewer may set.
func (s PaymentStatus) IsDecision() bool {
	return s == PaymentApproved || s == PaymentRejected
}

// Payment is one manually verified proof-of-payment submission.
// ProofURL is written once at creation; only the review fields mutate afterwards.
type Payment struct {
	ID         string        `json:"id" firestore:"-"`
	UserID     string        `json:"userId" firestore:"userId"`
	UserEmail  string        `json:"userEmail" firestore:"userEmail"`
	ProofURL   string        `json:"proofUrl" firestore:"proofUrl"`
	ProofPath  string        `json:"-" firestore:"proofPath,omitempty"`
	Status     PaymentStatus `json:"status" firestore:"status"`
	CreatedAt  time.Time     `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	ReviewedAt *time.Time    `json:"reviewedAt" firestore:"reviewedAt"`
	ReviewedBy *string       `json:"reviewedBy" firestore:"reviewedBy"`
	Notes      string        `json:"notes" firestore:"notes"`
}
