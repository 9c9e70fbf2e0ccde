package models

import "time"

// Message is one entry in a doubt's chat thread. Messages are never edited or deleted.
type Message struct {
	ID          string    `json:"id" firestore:"-"`
	DoubtID     string    `json:"doubtId" firestore:"-"`
	SenderID    string    `json:"senderId" firestore:"senderId"`
	SenderRole  Role      `json:"senderRole" firestore:"senderRole"`
	Text        string    `json:"text" firestore:"text"`
	Attachments []string  `json:"attachments" firestore:"attachments"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}
