// Package contact holds the contact domain model.
package contact

import "time"

// Contact is a person attached to exactly one organization. Deletion is
// blocked while any deal references the contact.
type Contact struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	OwnerID        int64     `json:"owner_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter narrows a contact listing. Page is 1-indexed.
type Filter struct {
	Search   string
	OwnerID  int64
	Page     int
	PageSize int
}
