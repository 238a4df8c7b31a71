// internal/bot/platform.go
package bot

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// ErrForbidden marks platform calls rejected for missing permissions, so
// the pipeline can distinguish them from transient failures.
var ErrForbidden = errors.New("missing permissions")

// Platform is the subset of Discord operations the moderation pipeline
// performs. The production implementation wraps a discordgo session; tests
// substitute a recording fake.
type Platform interface {
	DeleteMessage(channelID, messageID string) error
	SendDirectMessage(userID, content string) error
	SendChannelMessage(channelID string, msg *discordgo.MessageSend) error
	Channel(channelID string) (*discordgo.Channel, error)
	Guild(guildID string) (*discordgo.Guild, error)
	Member(guildID, userID string) (*discordgo.Member, error)
	MemberPermissions(userID, channelID string) (int64, error)
}

type sessionPlatform struct {
	s *discordgo.Session
}

func (p *sessionPlatform) DeleteMessage(channelID, messageID string) error {
	return wrapForbidden(p.s.ChannelMessageDelete(channelID, messageID))
}

func (p *sessionPlatform) SendDirectMessage(userID, content string) error {
	ch, err := p.s.UserChannelCreate(userID)
	if err != nil {
		return wrapForbidden(err)
	}
	_, err = p.s.ChannelMessageSend(ch.ID, content)
	return wrapForbidden(err)
}

func (p *sessionPlatform) SendChannelMessage(channelID string, msg *discordgo.MessageSend) error {
	_, err := p.s.ChannelMessageSendComplex(channelID, msg)
	return wrapForbidden(err)
}

func (p *sessionPlatform) Channel(channelID string) (*discordgo.Channel, error) {
	if ch, err := p.s.State.Channel(channelID); err == nil {
		return ch, nil
	}
	ch, err := p.s.Channel(channelID)
	return ch, wrapForbidden(err)
}

func (p *sessionPlatform) Guild(guildID string) (*discordgo.Guild, error) {
	if g, err := p.s.State.Guild(guildID); err == nil {
		return g, nil
	}
	g, err := p.s.Guild(guildID)
	return g, wrapForbidden(err)
}

func (p *sessionPlatform) Member(guildID, userID string) (*discordgo.Member, error) {
	if m, err := p.s.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	m, err := p.s.GuildMember(guildID, userID)
	return m, wrapForbidden(err)
}

func (p *sessionPlatform) MemberPermissions(userID, channelID string) (int64, error) {
	return p.s.UserChannelPermissions(userID, channelID)
}

// wrapForbidden tags permission rejections from the Discord REST API with
// ErrForbidden so callers can match on errors.Is.
func wrapForbidden(err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return err
}
