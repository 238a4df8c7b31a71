// internal/archive/archive.go
package archive

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"discord-scamguard/internal/models"
)

// Archive is an optional Postgres mirror of the flagged-message dataset.
// It is best-effort: callers log insert failures and move on, the CSV file
// remains the source of truth.
type Archive struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the archive table.
func Open(dsn string) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to archive database: %w", err)
	}

	if err := db.AutoMigrate(&models.ArchivedFlag{}); err != nil {
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Record inserts one flagged message. Re-delivery of the same message is a
// no-op thanks to the unique index on message_id.
func (a *Archive) Record(rec *models.FlaggedMessage) error {
	row := models.ArchivedFlag{
		MessageID:     rec.MessageID,
		UserID:        rec.UserID,
		Username:      rec.Username,
		Discriminator: rec.Discriminator,
		GuildID:       rec.GuildID,
		GuildName:     rec.GuildName,
		ChannelID:     rec.ChannelID,
		ChannelName:   rec.ChannelName,
		Content:       rec.Content,
		Confidence:    rec.Confidence,
		Reason:        rec.Reason,
		UserJoinedAt:  rec.JoinedAt,
		FlaggedAt:     rec.Timestamp,
	}
	return a.db.FirstOrCreate(&row, models.ArchivedFlag{MessageID: rec.MessageID}).Error
}
