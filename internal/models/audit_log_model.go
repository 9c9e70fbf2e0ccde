package models

import "time"

// AuditLog represents an audit trail event for administrative and gated actions.
type AuditLog struct {
	ID         string                 `json:"id" firestore:"-"`
	Timestamp  time.Time              `json:"timestamp" firestore:"timestamp,serverTimestamp"`
	UserID     string                 `json:"userId" firestore:"userId"` // Who performed the action
	Action     string                 `json:"action" firestore:"action"` // e.g., "DOUBT_CREATE", "PAYMENT_REVIEW"
	TargetType string                 `json:"targetType,omitempty" firestore:"targetType,omitempty"`
	TargetID   string                 `json:"targetId,omitempty" firestore:"targetId,omitempty"`
	IPAddress  string                 `json:"ipAddress,omitempty" firestore:"ipAddress,omitempty"`
	UserAgent  string                 `json:"userAgent,omitempty" firestore:"userAgent,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" firestore:"details,omitempty"`
}

// Audit actions.
const (
	AuditDoubtCreate    = "DOUBT_CREATE"
	AuditDoubtStatus    = "DOUBT_STATUS_UPDATE"
	AuditDoubtSolution  = "DOUBT_SOLUTION_ATTACH"
	AuditPaymentSubmit  = "PAYMENT_SUBMIT"
	AuditPaymentReview  = "PAYMENT_REVIEW"
	AuditUserRoleChange = "USER_ROLE_CHANGE"
	AuditTargetDoubt    = "DOUBT"
	AuditTargetPayment  = "PAYMENT"
	AuditTargetUser     = "USER"
)
