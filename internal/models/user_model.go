package models

import "time"

// Role is the authorization role stored on a user profile.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// User represents a user profile in the system.
// The document ID is the identity provider UID.
type User struct {
	ID          string    `json:"id" firestore:"-"` // Firebase Auth UID, will be the document ID
	Email       string    `json:"email" firestore:"email"`
	DisplayName string    `json:"displayName,omitempty" firestore:"displayName"`
	Role        Role      `json:"role" firestore:"role"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	LastLoginAt time.Time `json:"lastLoginAt" firestore:"lastLoginAt,serverTimestamp"`
}

// IsAdmin reports whether the stored role grants administrative access.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
