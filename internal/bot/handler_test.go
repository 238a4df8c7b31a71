// internal/bot/handler_test.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"discord-scamguard/internal/config"
	"discord-scamguard/internal/dataset"
	"discord-scamguard/internal/detector"
	"discord-scamguard/internal/models"
	"discord-scamguard/internal/stats"
)

type fakeDetector struct {
	res   detector.Result
	err   error
	calls int
}

func (d *fakeDetector) Detect(context.Context, string) (detector.Result, error) {
	d.calls++
	return d.res, d.err
}

type fakeDataset struct {
	order *[]string
	recs  []*models.FlaggedMessage
	err   error
	stats dataset.Stats
}

func (d *fakeDataset) Append(rec *models.FlaggedMessage) error {
	*d.order = append(*d.order, "append")
	if d.err != nil {
		return d.err
	}
	d.recs = append(d.recs, rec)
	return nil
}

func (d *fakeDataset) Stats() (dataset.Stats, error) {
	return d.stats, nil
}

type sentMessage struct {
	channelID string
	msg       *discordgo.MessageSend
}

type fakePlatform struct {
	order     *[]string
	guild     *discordgo.Guild
	guildErr  error
	channels  map[string]*discordgo.Channel
	member    *discordgo.Member
	memberErr error
	perms     int64
	deleteErr error
	dmErr     error
	sendErr   error
	dms       []string
	sent      []sentMessage
}

func (p *fakePlatform) DeleteMessage(string, string) error {
	*p.order = append(*p.order, "delete")
	return p.deleteErr
}

func (p *fakePlatform) SendDirectMessage(_, content string) error {
	*p.order = append(*p.order, "dm")
	if p.dmErr != nil {
		return p.dmErr
	}
	p.dms = append(p.dms, content)
	return nil
}

func (p *fakePlatform) SendChannelMessage(channelID string, msg *discordgo.MessageSend) error {
	*p.order = append(*p.order, "send:"+channelID)
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, sentMessage{channelID: channelID, msg: msg})
	return nil
}

func (p *fakePlatform) Channel(channelID string) (*discordgo.Channel, error) {
	ch, ok := p.channels[channelID]
	if !ok {
		return nil, errors.New("unknown channel")
	}
	return ch, nil
}

func (p *fakePlatform) Guild(string) (*discordgo.Guild, error) {
	if p.guildErr != nil {
		return nil, p.guildErr
	}
	return p.guild, nil
}

func (p *fakePlatform) Member(string, string) (*discordgo.Member, error) {
	if p.memberErr != nil {
		return nil, p.memberErr
	}
	return p.member, nil
}

func (p *fakePlatform) MemberPermissions(string, string) (int64, error) {
	return p.perms, nil
}

type testEnv struct {
	handler  *Handler
	platform *fakePlatform
	ds       *fakeDataset
	tracker  *stats.Tracker
	order    *[]string
}

func newEnv(t *testing.T, det detector.Detector) *testEnv {
	t.Helper()

	order := &[]string{}
	platform := &fakePlatform{
		order: order,
		perms: discordgo.PermissionAdministrator,
		guild: &discordgo.Guild{
			ID:   "guild1",
			Name: "Test Guild",
			Roles: []*discordgo.Role{
				{ID: "r-mod", Name: "Moderator"},
				{ID: "r-member", Name: "Member"},
			},
		},
		channels: map[string]*discordgo.Channel{
			"chan1":      {ID: "chan1", Name: "general"},
			"audit-chan": {ID: "audit-chan", Name: "mod-log"},
		},
	}
	ds := &fakeDataset{order: order}
	tracker := stats.New(filepath.Join(t.TempDir(), "bot_stats.json"), time.UTC, zap.NewNop())

	cfg := &config.Config{
		CommandPrefix:  "!",
		ExemptRoles:    []string{"Moderator"},
		AuditChannelID: "audit-chan",
		ModeratorRole:  "Moderator",
		Timezone:       "UTC",
	}

	handler := NewHandler(cfg, det, ds, tracker, nil, zap.NewNop())
	handler.platform = platform
	handler.botID = "bot-id"

	return &testEnv{handler: handler, platform: platform, ds: ds, tracker: tracker, order: order}
}

func guildMessage(content string, roleIDs ...string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "msg-1",
		ChannelID: "chan1",
		GuildID:   "guild1",
		Content:   content,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Author:    &discordgo.User{ID: "user-1", Username: "suspect", Discriminator: "1234"},
		Member: &discordgo.Member{
			Roles:    roleIDs,
			JoinedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}}
}

func (e *testEnv) auditMessage(t *testing.T) *discordgo.MessageSend {
	t.Helper()
	for _, sent := range e.platform.sent {
		if sent.channelID == "audit-chan" {
			return sent.msg
		}
	}
	t.Fatal("no audit message sent")
	return nil
}

const scamText = "Congratulations! You won a free Nitro, claim at bit.ly/xyz"

func TestExemptAuthorSkipsDetectionAndCounters(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}}
	env := newEnv(t, det)

	env.handler.handleMessage(guildMessage(scamText, "r-mod"))

	assert.Zero(t, det.calls, "exempt authors must never reach the detector")
	assert.Zero(t, env.tracker.SessionAnalyzed())
	assert.Zero(t, env.tracker.SessionFlagged())
	assert.Empty(t, *env.order, "no side effects for exempt authors")
}

func TestOwnAndBotMessagesIgnored(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}}
	env := newEnv(t, det)

	own := guildMessage(scamText, "r-member")
	own.Author.ID = "bot-id"
	env.handler.handleMessage(own)

	other := guildMessage(scamText, "r-member")
	other.Author.Bot = true
	env.handler.handleMessage(other)

	assert.Zero(t, det.calls)
	assert.Empty(t, *env.order)
}

func TestCommandPrefixSkipsDetection(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}}
	env := newEnv(t, det)

	env.handler.handleMessage(guildMessage("!stats", "r-member"))

	assert.Zero(t, det.calls, "command invocations are control input, not content")
	assert.Zero(t, env.tracker.SessionAnalyzed())
}

func TestCountersFollowVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		res         detector.Result
		err         error
		wantFlagged int64
	}{
		{name: "negative verdict", res: detector.Result{Confidence: 0.1, Reason: detector.ReasonPattern}},
		{name: "positive verdict", res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}, wantFlagged: 1},
		{name: "detector error fails open", err: errors.New("model offline")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newEnv(t, &fakeDetector{res: tt.res, err: tt.err})
			env.handler.handleMessage(guildMessage("some message", "r-member"))

			assert.Equal(t, int64(1), env.tracker.SessionAnalyzed(), "every message reaching detection counts as analyzed")
			assert.Equal(t, tt.wantFlagged, env.tracker.SessionFlagged())
			assert.Equal(t, int64(1), env.tracker.Overall().TotalMessagesAnalyzed)
			assert.Equal(t, tt.wantFlagged, env.tracker.Overall().TotalMessagesFlagged)

			if tt.err != nil || !tt.res.IsScam {
				assert.Empty(t, *env.order, "no response sequence without a positive verdict")
			}
		})
	}
}

func TestResponseSequenceOrder(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.93, Reason: detector.ReasonPattern}}
	env := newEnv(t, det)

	env.handler.handleMessage(guildMessage(scamText, "r-member"))

	require.Equal(t, []string{"append", "delete", "dm", "send:audit-chan"}, *env.order,
		"persist must come before delete, notify before audit")

	require.Len(t, env.ds.recs, 1)
	rec := env.ds.recs[0]
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "suspect", rec.Username)
	assert.Equal(t, "guild1", rec.GuildID)
	assert.Equal(t, "Test Guild", rec.GuildName)
	assert.Equal(t, "general", rec.ChannelName)
	assert.Equal(t, scamText, rec.Content)
	assert.InDelta(t, 0.93, rec.Confidence, 0.001)
	assert.Equal(t, detector.ReasonPattern, rec.Reason)
	assert.Equal(t, "2025-01-02 03:04:05 UTC", rec.JoinedAt)
	assert.Equal(t, "msg-1", rec.MessageID)

	audit := env.auditMessage(t)
	assert.Equal(t, "<@&r-mod>", audit.Content, "audit entry pings the moderator role")
	require.NotNil(t, audit.Embed)
	assert.Contains(t, fieldValue(audit.Embed, "Message Content"), "free Nitro")
	assert.Equal(t, "93.00%", fieldValue(audit.Embed, "Confidence"))

	require.Len(t, env.platform.dms, 1)
	assert.Contains(t, env.platform.dms[0], detector.ReasonPattern)
}

func TestDeleteFailureAbortsRemainder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "permission failure", err: fmt.Errorf("%w: 403 on delete", ErrForbidden)},
		{name: "generic failure", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}}
			env := newEnv(t, det)
			env.platform.deleteErr = tt.err

			env.handler.handleMessage(guildMessage(scamText, "r-member"))

			assert.Equal(t, []string{"append", "delete"}, *env.order,
				"no DM and no audit when the message was not actually removed")
			assert.Equal(t, int64(1), env.tracker.SessionFlagged(), "the verdict still counts")
		})
	}
}

func TestDMFailureDoesNotBlockAudit(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}}

	clean := newEnv(t, det)
	clean.handler.handleMessage(guildMessage(scamText, "r-member"))

	failing := newEnv(t, det)
	failing.platform.dmErr = errors.New("cannot send messages to this user")
	failing.handler.handleMessage(guildMessage(scamText, "r-member"))

	assert.Equal(t, []string{"append", "delete", "dm", "send:audit-chan"}, *failing.order)
	assert.Equal(t, clean.auditMessage(t).Embed.Fields, failing.auditMessage(t).Embed.Fields,
		"audit content is unaffected by the DM outcome")
}

func TestAuditChannelMissingStopsQuietly(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}}
	env := newEnv(t, det)
	delete(env.platform.channels, "audit-chan")

	env.handler.handleMessage(guildMessage(scamText, "r-member"))

	assert.Equal(t, []string{"append", "delete", "dm"}, *env.order)
}

func TestMissingModeratorRoleSendsWithoutPing(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}}
	env := newEnv(t, det)
	env.platform.guild.Roles = []*discordgo.Role{{ID: "r-member", Name: "Member"}}

	env.handler.handleMessage(guildMessage(scamText, "r-member"))

	assert.Empty(t, env.auditMessage(t).Content)
}

func TestDatasetFailureDoesNotStopSequence(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}}
	env := newEnv(t, det)
	env.ds.err = errors.New("disk full")

	env.handler.handleMessage(guildMessage(scamText, "r-member"))

	assert.Equal(t, []string{"append", "delete", "dm", "send:audit-chan"}, *env.order,
		"a failed append must not protect the scam message")
}

func TestEmptyContentPlaceholderInAudit(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.9, Reason: detector.ReasonPattern}}
	env := newEnv(t, det)

	env.handler.handleMessage(guildMessage("", "r-member"))

	assert.Equal(t, noContentPlaceholder, fieldValue(env.auditMessage(t).Embed, "Message Content"))
}

func TestEndToEndNitroScam(t *testing.T) {
	t.Parallel()

	env := newEnv(t, detector.NewChain(detector.NewPatternDetector(0.7)))

	env.handler.handleMessage(guildMessage(scamText, "r-member"))

	assert.Equal(t, int64(1), env.tracker.SessionFlagged())
	require.Len(t, env.ds.recs, 1)
	assert.Equal(t, detector.ReasonPattern, env.ds.recs[0].Reason)
	assert.Equal(t, []string{"append", "delete", "dm", "send:audit-chan"}, *env.order)
	assert.Equal(t, "<@&r-mod>", env.auditMessage(t).Content)
	assert.Len(t, env.platform.dms, 1)
}

func TestFalseAlarmCommand(t *testing.T) {
	t.Parallel()

	env := newEnv(t, &fakeDetector{})

	env.handler.handleMessage(guildMessage("!falsealarm", "r-member"))

	assert.Equal(t, int64(1), env.tracker.Overall().TotalFalseAlarms)
	require.Len(t, env.platform.sent, 1)
	assert.Equal(t, "chan1", env.platform.sent[0].channelID)
}

func TestAdminCommandsRejectNonAdmins(t *testing.T) {
	t.Parallel()

	env := newEnv(t, &fakeDetector{})
	env.platform.perms = 0

	env.handler.handleMessage(guildMessage("!falsealarm", "r-member"))

	assert.Zero(t, env.tracker.Overall().TotalFalseAlarms)
	assert.Empty(t, env.platform.sent)
}

func TestCheckCommand(t *testing.T) {
	t.Parallel()

	det := &fakeDetector{res: detector.Result{IsScam: true, Confidence: 0.88, Reason: detector.ReasonPattern}}
	env := newEnv(t, det)

	env.handler.handleMessage(guildMessage("!check "+scamText, "r-member"))

	assert.Equal(t, 1, det.calls)
	assert.Zero(t, env.tracker.SessionAnalyzed(), "manual checks do not count as analyzed traffic")

	require.Len(t, env.platform.sent, 1)
	embed := env.platform.sent[0].msg.Embed
	require.NotNil(t, embed)
	assert.Equal(t, "Yes", fieldValue(embed, "Is Scam?"))
	assert.Equal(t, "88.00%", fieldValue(embed, "Confidence"))
}

func fieldValue(embed *discordgo.MessageEmbed, name string) string {
	for _, f := range embed.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}
