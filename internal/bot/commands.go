// internal/bot/commands.go
package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorRed   = 0xe74c3c
	colorGreen = 0x2ecc71
	colorBlue  = 0x3498db
)

// handleCommand dispatches admin prefix commands. Anything that starts with
// the prefix is skipped by detection, but only recognized commands from
// administrators get a response.
func (h *Handler) handleCommand(m *discordgo.MessageCreate) {
	body := strings.TrimPrefix(m.Content, h.cfg.CommandPrefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}

	name := strings.ToLower(fields[0])
	switch name {
	case "check", "stats", "dataset", "falsealarm":
	default:
		return
	}

	if !h.isAdmin(m) {
		h.log.Debug("ignoring admin command from non-admin",
			zap.String("command", name), zap.String("user_id", m.Author.ID))
		return
	}

	switch name {
	case "check":
		h.cmdCheck(m, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), fields[0])))
	case "stats":
		h.cmdStats(m)
	case "dataset":
		h.cmdDataset(m)
	case "falsealarm":
		h.cmdFalseAlarm(m)
	}
}

func (h *Handler) isAdmin(m *discordgo.MessageCreate) bool {
	if m.GuildID == "" {
		return false
	}
	perms, err := h.platform.MemberPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		h.log.Warn("failed to resolve member permissions", zap.Error(err))
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

// cmdCheck runs the detector over arbitrary text for manual testing.
func (h *Handler) cmdCheck(m *discordgo.MessageCreate, text string) {
	if text == "" {
		h.reply(m.ChannelID, &discordgo.MessageEmbed{
			Title:       "Scam Detection Result",
			Description: "Usage: `" + h.cfg.CommandPrefix + "check <text>`",
			Color:       colorBlue,
		})
		return
	}

	res, err := h.detector.Detect(context.Background(), text)
	if err != nil {
		h.log.Error("manual check failed", zap.Error(err))
		h.reply(m.ChannelID, &discordgo.MessageEmbed{
			Title:       "Scam Detection Result",
			Description: "Detection failed, see the bot logs.",
			Color:       colorRed,
		})
		return
	}

	verdict, color := "No", colorGreen
	if res.IsScam {
		verdict, color = "Yes", colorRed
	}
	reason := res.Reason
	if reason == "" {
		reason = "N/A"
	}

	h.reply(m.ChannelID, &discordgo.MessageEmbed{
		Title: "Scam Detection Result",
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Is Scam?", Value: verdict, Inline: true},
			{Name: "Confidence", Value: percent(res.Confidence), Inline: true},
			{Name: "Reason", Value: reason},
			{Name: "Tested Message", Value: excerpt(text)},
		},
	})
}

// cmdStats reports the comprehensive metrics bundle: session, overall and
// dataset numbers in one embed.
func (h *Handler) cmdStats(m *discordgo.MessageCreate) {
	overall := h.stats.Overall()

	fields := []*discordgo.MessageEmbedField{
		{Name: "Session Uptime", Value: h.stats.SessionUptime(), Inline: true},
		{Name: "Session Analyzed", Value: fmt.Sprintf("%d", h.stats.SessionAnalyzed()), Inline: true},
		{Name: "Session Flagged", Value: fmt.Sprintf("%d", h.stats.SessionFlagged()), Inline: true},
		{Name: "Session Detection Rate", Value: fmt.Sprintf("%.2f%%", h.stats.SessionDetectionRate()), Inline: true},
		{Name: "Messages/Hour", Value: fmt.Sprintf("%.1f", h.stats.SessionMessagesPerHour()), Inline: true},
		{Name: "Total Uptime", Value: h.stats.TotalUptime(), Inline: true},
		{Name: "Total Analyzed", Value: fmt.Sprintf("%d", overall.TotalMessagesAnalyzed), Inline: true},
		{Name: "Total Flagged", Value: fmt.Sprintf("%d", overall.TotalMessagesFlagged), Inline: true},
		{Name: "False Alarms", Value: fmt.Sprintf("%d", overall.TotalFalseAlarms), Inline: true},
		{Name: "Overall Detection Rate", Value: fmt.Sprintf("%.2f%%", h.stats.OverallDetectionRate()), Inline: true},
		{Name: "Accuracy Estimate", Value: fmt.Sprintf("%.2f%%", h.stats.AccuracyEstimate()), Inline: true},
	}

	if ds, err := h.dataset.Stats(); err == nil {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "Dataset Rows", Value: fmt.Sprintf("%d", ds.TotalMessages), Inline: true},
			&discordgo.MessageEmbedField{Name: "Dataset Size", Value: fmt.Sprintf("%.2f MB", float64(ds.FileSize)/1024/1024), Inline: true},
		)
	} else {
		h.log.Error("failed to read dataset stats", zap.Error(err))
	}

	h.reply(m.ChannelID, &discordgo.MessageEmbed{
		Title:  "Bot Statistics",
		Color:  colorBlue,
		Fields: fields,
	})
}

// cmdDataset reports the dataset store breakdown.
func (h *Handler) cmdDataset(m *discordgo.MessageCreate) {
	ds, err := h.dataset.Stats()
	if err != nil {
		h.log.Error("failed to read dataset stats", zap.Error(err))
		h.reply(m.ChannelID, &discordgo.MessageEmbed{
			Title:       "Dataset Info",
			Description: "Failed to read the dataset, see the bot logs.",
			Color:       colorRed,
		})
		return
	}
	if !ds.Exists {
		h.reply(m.ChannelID, &discordgo.MessageEmbed{
			Title:       "Dataset Info",
			Description: "No dataset file yet, nothing has been flagged.",
			Color:       colorBlue,
		})
		return
	}

	methods := make([]string, 0, len(ds.DetectionMethods))
	for method := range ds.DetectionMethods {
		methods = append(methods, method)
	}
	sort.Strings(methods)

	var breakdown strings.Builder
	for _, method := range methods {
		fmt.Fprintf(&breakdown, "%s: %d\n", method, ds.DetectionMethods[method])
	}
	if breakdown.Len() == 0 {
		breakdown.WriteString("None")
	}

	h.reply(m.ChannelID, &discordgo.MessageEmbed{
		Title: "Dataset Info",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Flagged Messages", Value: fmt.Sprintf("%d", ds.TotalMessages), Inline: true},
			{Name: "File Size", Value: fmt.Sprintf("%d bytes", ds.FileSize), Inline: true},
			{Name: "Detection Methods", Value: breakdown.String()},
		},
	})
}

// cmdFalseAlarm records one reported false alarm. This is the explicit
// administrative path for correcting the accuracy estimate; nothing in the
// pipeline ever increments it automatically.
func (h *Handler) cmdFalseAlarm(m *discordgo.MessageCreate) {
	h.stats.IncrementFalseAlarm()
	h.log.Info("false alarm recorded",
		zap.String("reported_by", m.Author.ID), zap.String("channel_id", m.ChannelID))

	h.reply(m.ChannelID, &discordgo.MessageEmbed{
		Title:       "False Alarm Recorded",
		Description: "Thanks, the accuracy estimate has been updated.",
		Color:       colorGreen,
	})
}

func (h *Handler) reply(channelID string, embed *discordgo.MessageEmbed) {
	if err := h.platform.SendChannelMessage(channelID, &discordgo.MessageSend{Embed: embed}); err != nil {
		h.log.Error("failed to send command reply", zap.Error(err))
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}
