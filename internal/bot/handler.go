// internal/bot/handler.go
package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"discord-scamguard/internal/config"
	"discord-scamguard/internal/dataset"
	"discord-scamguard/internal/detector"
	"discord-scamguard/internal/models"
	"discord-scamguard/internal/stats"
)

const (
	// maxExcerptLen caps the audit-log content excerpt; Discord rejects
	// embed field values above this length.
	maxExcerptLen = 1024

	noContentPlaceholder = "*No content*"

	// dmSentinel fills the guild columns for direct messages.
	dmSentinel = "DM"

	joinDateLayout = "2006-01-02 15:04:05 UTC"
)

// Dataset is the slice of the dataset store the handler needs.
type Dataset interface {
	Append(rec *models.FlaggedMessage) error
	Stats() (dataset.Stats, error)
}

// Archiver is the optional Postgres mirror for flagged messages.
type Archiver interface {
	Record(rec *models.FlaggedMessage) error
}

// Handler is the moderation pipeline: it watches every incoming message,
// runs the detector over non-exempt ones, and drives the response sequence
// for positive verdicts.
type Handler struct {
	cfg      *config.Config
	detector detector.Detector
	dataset  Dataset
	stats    *stats.Tracker
	archive  Archiver // nil when no archive is configured
	platform Platform
	loc      *time.Location
	log      *zap.Logger
	botID    string
	exempt   map[string]struct{}
}

// NewHandler wires the pipeline together. archive may be nil.
func NewHandler(cfg *config.Config, det detector.Detector, ds Dataset, tracker *stats.Tracker, archive Archiver, log *zap.Logger) *Handler {
	exempt := make(map[string]struct{}, len(cfg.ExemptRoles))
	for _, role := range cfg.ExemptRoles {
		exempt[role] = struct{}{}
	}

	return &Handler{
		cfg:      cfg,
		detector: det,
		dataset:  ds,
		stats:    tracker,
		archive:  archive,
		loc:      cfg.Location(),
		log:      log,
		exempt:   exempt,
	}
}

// SetSession binds the handler to a live Discord session.
func (h *Handler) SetSession(s *discordgo.Session) {
	h.platform = &sessionPlatform{s: s}

	user, err := s.User("@me")
	if err != nil {
		h.log.Error("failed to look up bot user", zap.Error(err))
		return
	}
	h.botID = user.ID
}

// OnMessageCreate is the discordgo gateway entry point.
func (h *Handler) OnMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	h.handleMessage(m)
}

// handleMessage runs the short-circuit filters, the detector, and on a
// positive verdict the response sequence. It never propagates an error;
// every failure is isolated so later messages keep flowing.
func (h *Handler) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == h.botID || m.Author.Bot {
		return
	}
	if strings.HasPrefix(m.Content, h.cfg.CommandPrefix) {
		h.handleCommand(m)
		return
	}
	if h.isExempt(m) {
		return
	}

	res, err := h.detector.Detect(context.Background(), m.Content)
	h.stats.IncrementAnalyzed()
	if err != nil {
		// Fail open: a broken detector must never block normal chat.
		h.log.Error("detector failed, treating message as clean",
			zap.String("message_id", m.ID), zap.Error(err))
		return
	}
	if !res.IsScam {
		return
	}

	h.stats.IncrementFlagged()
	h.log.Warn("scam detected",
		zap.String("user", m.Author.Username),
		zap.String("user_id", m.Author.ID),
		zap.Float64("confidence", res.Confidence),
		zap.String("reason", res.Reason))

	h.respond(m, res)
}

// isExempt reports whether the author holds any exempt role. Lookup
// failures count as not exempt so a state hiccup cannot disable moderation.
func (h *Handler) isExempt(m *discordgo.MessageCreate) bool {
	if m.GuildID == "" || len(h.exempt) == 0 {
		return false
	}

	member := m.Member
	if member == nil {
		var err error
		member, err = h.platform.Member(m.GuildID, m.Author.ID)
		if err != nil {
			h.log.Warn("failed to fetch member for exemption check", zap.Error(err))
			return false
		}
	}

	guild, err := h.platform.Guild(m.GuildID)
	if err != nil {
		h.log.Warn("failed to fetch guild for exemption check", zap.Error(err))
		return false
	}

	names := make(map[string]string, len(guild.Roles))
	for _, role := range guild.Roles {
		names[role.ID] = role.Name
	}
	for _, id := range member.Roles {
		if _, ok := h.exempt[names[id]]; ok {
			return true
		}
	}
	return false
}

// respond executes the ordered response sequence for one flagged message:
// persist, delete, notify, audit. The dataset append happens before the
// delete so a failed deletion cannot lose the training sample. A delete
// failure aborts the rest; a DM failure never does.
func (h *Handler) respond(m *discordgo.MessageCreate, res detector.Result) {
	detectedAt := time.Now().In(h.loc)
	rec := h.buildRecord(m, res, detectedAt)

	if err := h.dataset.Append(rec); err != nil {
		h.log.Error("failed to append flagged message to dataset", zap.Error(err))
	}
	if h.archive != nil {
		if err := h.archive.Record(rec); err != nil {
			h.log.Error("failed to archive flagged message", zap.Error(err))
		}
	}

	if err := h.platform.DeleteMessage(m.ChannelID, m.ID); err != nil {
		if errors.Is(err, ErrForbidden) {
			h.log.Error("bot lacks permission to delete messages", zap.Error(err))
		} else {
			h.log.Error("failed to delete scam message", zap.Error(err))
		}
		return
	}
	h.log.Info("deleted scam message",
		zap.String("user", m.Author.Username), zap.String("message_id", m.ID))

	if err := h.platform.SendDirectMessage(m.Author.ID, removalNotice(res)); err != nil {
		h.log.Warn("could not notify author, DMs may be closed",
			zap.String("user_id", m.Author.ID), zap.Error(err))
	}

	h.sendAuditLog(m, rec, detectedAt)
}

// buildRecord captures everything the dataset needs about a flagged message.
func (h *Handler) buildRecord(m *discordgo.MessageCreate, res detector.Result, detectedAt time.Time) *models.FlaggedMessage {
	rec := &models.FlaggedMessage{
		Timestamp:     detectedAt,
		UserID:        m.Author.ID,
		Username:      m.Author.Username,
		Discriminator: m.Author.Discriminator,
		GuildID:       dmSentinel,
		GuildName:     dmSentinel,
		ChannelID:     m.ChannelID,
		ChannelName:   "Unknown",
		Content:       m.Content,
		Confidence:    res.Confidence,
		Reason:        res.Reason,
		JoinedAt:      h.joinDate(m),
		MessageID:     m.ID,
	}

	if m.GuildID != "" {
		rec.GuildID = m.GuildID
		if guild, err := h.platform.Guild(m.GuildID); err == nil {
			rec.GuildName = guild.Name
		} else {
			rec.GuildName = "Unknown"
		}
	}
	if ch, err := h.platform.Channel(m.ChannelID); err == nil && ch.Name != "" {
		rec.ChannelName = ch.Name
	}
	return rec
}

// joinDate formats the author's server-join timestamp, "Unknown" when it
// cannot be resolved (DMs, or a member lookup failure).
func (h *Handler) joinDate(m *discordgo.MessageCreate) string {
	if m.GuildID == "" {
		return "Unknown"
	}
	member := m.Member
	if member == nil {
		var err error
		member, err = h.platform.Member(m.GuildID, m.Author.ID)
		if err != nil {
			return "Unknown"
		}
	}
	if member.JoinedAt.IsZero() {
		return "Unknown"
	}
	return member.JoinedAt.UTC().Format(joinDateLayout)
}

// sendAuditLog posts the structured staff-channel entry, pinging the
// configured moderator role when it resolves.
func (h *Handler) sendAuditLog(m *discordgo.MessageCreate, rec *models.FlaggedMessage, detectedAt time.Time) {
	if h.cfg.AuditChannelID == "" {
		h.log.Error("no audit channel configured, skipping audit log")
		return
	}
	if _, err := h.platform.Channel(h.cfg.AuditChannelID); err != nil {
		h.log.Error("audit channel not found",
			zap.String("channel_id", h.cfg.AuditChannelID), zap.Error(err))
		return
	}

	var ping string
	if m.GuildID != "" {
		if guild, err := h.platform.Guild(m.GuildID); err == nil {
			for _, role := range guild.Roles {
				if role.Name == h.cfg.ModeratorRole {
					ping = "<@&" + role.ID + ">"
					break
				}
			}
		}
	}
	if ping == "" {
		h.log.Warn("moderator role not found, sending audit log without ping",
			zap.String("role", h.cfg.ModeratorRole))
	}

	embed := &discordgo.MessageEmbed{
		Title:     "🚨 Scam Message Deleted",
		Color:     colorRed,
		Timestamp: detectedAt.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: m.Author.Mention() + " (" + userTag(m.Author) + ")"},
			{Name: "User ID", Value: m.Author.ID, Inline: true},
			{Name: "Joined Server", Value: rec.JoinedAt, Inline: true},
			{Name: "Detection Method", Value: rec.Reason},
			{Name: "Confidence", Value: percent(rec.Confidence), Inline: true},
			{Name: "Channel", Value: "<#" + m.ChannelID + ">", Inline: true},
			{Name: "Message Sent", Value: m.Timestamp.In(h.loc).Format(joinDateLayout), Inline: true},
			{Name: "Message Content", Value: excerpt(m.Content)},
		},
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: m.Author.AvatarURL("")},
	}

	err := h.platform.SendChannelMessage(h.cfg.AuditChannelID, &discordgo.MessageSend{
		Content: ping,
		Embed:   embed,
	})
	if err != nil {
		h.log.Error("failed to send audit log", zap.Error(err))
		return
	}
	h.log.Info("sent audit log", zap.String("channel_id", h.cfg.AuditChannelID))
}

func removalNotice(res detector.Result) string {
	return "Your message was flagged as a likely scam (" + res.Reason + ", " +
		percent(res.Confidence) + " confidence) and has been removed.\n" +
		"If you believe this was a mistake, please contact the server moderators " +
		"so they can review the detection and mark it as a false alarm."
}

// excerpt truncates message content for the audit embed.
func excerpt(content string) string {
	if content == "" {
		return noContentPlaceholder
	}
	runes := []rune(content)
	if len(runes) > maxExcerptLen {
		return string(runes[:maxExcerptLen])
	}
	return content
}

func userTag(u *discordgo.User) string {
	return u.Username + "#" + u.Discriminator
}
