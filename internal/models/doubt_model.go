package models

import "time"

// DoubtStatus is a doubt's position in its lifecycle.
// Administrators may move a doubt between any two statuses; none is terminal.
type DoubtStatus string

const (
	DoubtOpen       DoubtStatus = "open"
	DoubtInProgress DoubtStatus = "in_progress"
	DoubtSolved     DoubtStatus = "solved"
	DoubtClosed     DoubtStatus = "closed"
)

// Valid reports whether s is a known doubt status.
func (s DoubtStatus) Valid() bool {
	switch s {
	case DoubtOpen, DoubtInProgress, DoubtSolved, DoubtClosed:
		return true
	}
	return false
}

// Subject is the topic a doubt is filed under.
type Subject string

const (
	SubjectPhysics   Subject = "physics"
	SubjectChemistry Subject = "chemistry"
	SubjectMath      Subject = "math"
	SubjectOther     Subject = "other"
)

// Valid reports whether s is a known subject.
func (s Subject) Valid() bool {
	switch s {
	case SubjectPhysics, SubjectChemistry, SubjectMath, SubjectOther:
		return true
	}
	return false
}

// Doubt is a question submitted by a subscribed student.
// Title, Description, Subject and Images are fixed at creation.
type Doubt struct {
	ID                 string      `json:"id" firestore:"-"`
	UserID             string      `json:"userId" firestore:"userId"`
	UserEmail          string      `json:"userEmail" firestore:"userEmail"`
	Title              string      `json:"title" firestore:"title"`
	Description        string      `json:"description" firestore:"description"`
	Subject            Subject     `json:"subject" firestore:"subject"`
	Status             DoubtStatus `json:"status" firestore:"status"`
	Images             []string    `json:"images" firestore:"images"`
	LiveSessionLink    string      `json:"liveSessionLink" firestore:"liveSessionLink"`
	SolutionYouTubeURL string      `json:"solutionYouTubeUrl" firestore:"solutionYouTubeUrl"`
	SolutionNotes      string      `json:"solutionNotes" firestore:"solutionNotes"`
	CreatedAt          time.Time   `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt          time.Time   `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// HasSolution reports whether any solution content is attached.
func (d *Doubt) HasSolution() bool {
	return d.SolutionNotes != "" || d.SolutionYouTubeURL != "" || d.LiveSessionLink != ""
}
