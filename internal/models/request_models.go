package models

// SignUpRequest is the body for POST /auth/signup.
type SignUpRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"required,max=100"`
}

// SignInRequest is the body for POST /auth/signin.
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ReviewPaymentRequest is the body for POST /admin/payments/:paymentId/review.
type ReviewPaymentRequest struct {
	Status PaymentStatus `json:"status" binding:"required,oneof=approved rejected"`
	Notes  string        `json:"notes" binding:"max=2000"`
}

// UpdateDoubtStatusRequest is the body for PUT /admin/doubts/:doubtId/status.
type UpdateDoubtStatusRequest struct {
	Status DoubtStatus `json:"status" binding:"required,oneof=open in_progress solved closed"`
}

// AttachSolutionRequest is the body for PUT /admin/doubts/:doubtId/solution.
// Nil fields are left untouched; an empty string clears the field.
type AttachSolutionRequest struct {
	SolutionYouTubeURL *string `json:"solutionYouTubeUrl"`
	SolutionNotes      *string `json:"solutionNotes"`
	LiveSessionLink    *string `json:"liveSessionLink"`
}

// Empty reports whether no solution field is set.
func (r AttachSolutionRequest) Empty() bool {
	return r.SolutionYouTubeURL == nil && r.SolutionNotes == nil && r.LiveSessionLink == nil
}

// UpdateDoubtRequest is the body for PUT /admin/doubts/:doubtId. It changes
// status and solution fields in one write; an empty status is left untouched.
type UpdateDoubtRequest struct {
	Status DoubtStatus `json:"status,omitempty" binding:"omitempty,oneof=open in_progress solved closed"`
	AttachSolutionRequest
}

// PostMessageRequest is the body for POST /doubts/:doubtId/messages.
type PostMessageRequest struct {
	Text string `json:"text" binding:"max=5000"`
}

// FileUpload is an uploaded file as received from a client.
type FileUpload struct {
	Filename    string
	ContentType string // as declared by the client; the sniffed type wins
	Data        []byte
}

// Size returns the payload length in bytes.
func (f FileUpload) Size() int64 { return int64(len(f.Data)) }

// DoubtFilter narrows doubt list queries. Zero values mean "no constraint".
type DoubtFilter struct {
	UserID  string      `form:"-"`
	Status  DoubtStatus `form:"status"`
	Subject Subject     `form:"subject"`
	Search  string      `form:"search"` // substring of title or userEmail, case-insensitive
	Limit   int         `form:"limit"`
	// OrderByUpdated sorts by updatedAt instead of createdAt (both descending).
	OrderByUpdated bool `form:"-"`
}

// PaymentFilter narrows payment list queries. Zero values mean "no constraint".
type PaymentFilter struct {
	UserID string        `form:"-"`
	Status PaymentStatus `form:"status"`
	Search string        `form:"search"` // substring of userEmail, case-insensitive
	Limit  int           `form:"limit"`
}
