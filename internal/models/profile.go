package models

import "time"

// UserProfile is the public profile of a crew member, stored in the users collection
type UserProfile struct {
	ID          string    `bson:"_id" json:"id"`
	DisplayName string    `bson:"displayName" json:"display_name"`
	Email       string    `bson:"email" json:"email"`
	CreatedAt   time.Time `bson:"createdAt" json:"created_at"`
}

// Member is a project member resolved against the profile collection.
// It is derived on demand and never stored in the project document.
type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Found       bool   `json:"found"`
}
