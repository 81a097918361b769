package domain

import "time"

// User is a profile record written at sign up.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PhotoURL     string
	Bio          string
	Rating       float64
	PasswordHash []byte
	CreatedAt    time.Time
}
