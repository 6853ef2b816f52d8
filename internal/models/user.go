package models

import (
	"time"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string // e.g., "agent", "admin"
	Status       string // "active", "disabled"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
