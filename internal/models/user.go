package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `json:"id"`
	TelegramID  int64     `json:"telegram_id"`
	Username    *string   `json:"username,omitempty"`
	DisplayName *string   `json:"display_name,omitempty"`
	FirstName   string    `json:"first_name"`
	IsBanned    bool      `json:"is_banned"`
	IsModerator bool      `json:"is_moderator"`
	IsAdmin     bool      `json:"is_admin"`
	DealsCount  int       `json:"deals_count"`
	TotalVolume string    `json:"total_volume"` // USD decimal as string
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
}
