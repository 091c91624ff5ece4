package models

import "time"

// User is identified by the sender id of the channel it talks through:
// an E.164 phone number for WhatsApp, "tg:<chat id>" for Telegram.
type User struct {
	UserID    int64     `json:"user_id"`
	Phone     string    `json:"phone_number"`
	CreatedAt time.Time `json:"created_at"`
}
