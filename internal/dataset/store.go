// internal/dataset/store.go
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"discord-scamguard/internal/models"
)

// header is the fixed column layout of the dataset file. It is written once
// when the file is created and never again.
var header = []string{
	"timestamp",
	"user_id",
	"username",
	"user_discriminator",
	"guild_id",
	"guild_name",
	"channel_id",
	"channel_name",
	"message_content",
	"confidence",
	"detection_reason",
	"user_joined_at",
	"message_id",
}

const timestampLayout = "2006-01-02 15:04:05 MST"

// Store is the append-only CSV log of flagged messages. Appends are
// serialized by a mutex; rows are never rewritten or removed.
type Store struct {
	path string
	mu   sync.Mutex
	log  *zap.Logger
}

// Stats describes the dataset file as of one full read.
type Stats struct {
	Exists           bool
	TotalMessages    int
	FileSize         int64
	DetectionMethods map[string]int
}

// New opens the store at path, creating the data directory and the file
// with its header row if they do not exist yet.
func New(path string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{path: path, log: log}

	if _, err := os.Stat(path); err == nil {
		log.Info("found existing dataset file", zap.String("path", path))
		return s, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat dataset file: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write dataset header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush dataset header: %w", err)
	}

	log.Info("created new dataset file", zap.String("path", path))
	return s, nil
}

// Append serializes one flagged message and adds it to the end of the file.
// Field escaping is handled by the CSV writer, so embedded commas, quotes
// and newlines in message content cannot break row boundaries.
func (s *Store) Append(rec *models.FlaggedMessage) error {
	row := []string{
		rec.Timestamp.Format(timestampLayout),
		rec.UserID,
		rec.Username,
		rec.Discriminator,
		rec.GuildID,
		rec.GuildName,
		rec.ChannelID,
		rec.ChannelName,
		rec.Content,
		fmt.Sprintf("%.4f", rec.Confidence),
		rec.Reason,
		rec.JoinedAt,
		rec.MessageID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write dataset row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush dataset row: %w", err)
	}

	s.log.Info("logged flagged message to dataset",
		zap.String("user", rec.Username),
		zap.Float64("confidence", rec.Confidence),
		zap.String("reason", rec.Reason))
	return nil
}

// Stats re-reads the whole file and summarizes it. The read is not guarded
// against concurrent appends; a row landing mid-read only makes the counts
// momentarily stale.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{DetectionMethods: map[string]int{}}

	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return stats, nil
	} else if err != nil {
		return stats, fmt.Errorf("failed to stat dataset file: %w", err)
	}

	file, err := os.Open(s.path)
	if err != nil {
		return stats, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(header)
	rows, err := reader.ReadAll()
	if err != nil {
		return stats, fmt.Errorf("failed to read dataset file: %w", err)
	}

	stats.Exists = true
	stats.FileSize = info.Size()
	if len(rows) <= 1 {
		return stats, nil
	}

	// Column index of detection_reason in the fixed header.
	const reasonCol = 10
	for _, row := range rows[1:] {
		stats.TotalMessages++
		stats.DetectionMethods[row[reasonCol]]++
	}
	return stats, nil
}

// Path returns the location of the dataset file.
func (s *Store) Path() string {
	return s.path
}
