// internal/models/models.go
package models

import (
	"time"
)

// FlaggedMessage is one detected scam message, captured at detection time.
// Instants stay as time.Time here; formatting happens at the store and
// audit boundaries.
type FlaggedMessage struct {
	Timestamp     time.Time
	UserID        string
	Username      string
	Discriminator string
	GuildID       string // "DM" for direct messages
	GuildName     string
	ChannelID     string
	ChannelName   string
	Content       string
	Confidence    float64
	Reason        string
	JoinedAt      string // formatted join date, "Unknown" when unavailable
	MessageID     string
}

// ArchivedFlag mirrors a FlaggedMessage into Postgres when the archive is
// configured, for offline analysis alongside the CSV dataset.
type ArchivedFlag struct {
	ID            uint   `gorm:"primaryKey"`
	MessageID     string `gorm:"uniqueIndex;not null"`
	UserID        string `gorm:"not null"`
	Username      string `gorm:"not null"`
	Discriminator string
	GuildID       string `gorm:"not null"`
	GuildName     string
	ChannelID     string `gorm:"not null"`
	ChannelName   string
	Content       string `gorm:"type:text"`
	Confidence    float64
	Reason        string
	UserJoinedAt  string
	FlaggedAt     time.Time `gorm:"not null"`
	CreatedAt     time.Time
}
