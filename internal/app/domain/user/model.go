// Package user holds the user domain model.
package user

import "time"

// User is an account holder. Users exist independently of organizations and
// join them through memberships.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}
