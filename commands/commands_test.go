package commands_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Haibread/tempvoice/channels"
	"github.com/Haibread/tempvoice/channels/platformtest"
	"github.com/Haibread/tempvoice/commands"
	"github.com/Haibread/tempvoice/database"
	"github.com/Haibread/tempvoice/panel"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	guild    = "100000000000000001"
	parent   = "200000000000000001"
	parent2  = "200000000000000002"
	category = "250000000000000001"
	bot      = "999000000000000001"
	alice    = "400000000000000001"
	carol    = "400000000000000003"
	role     = "500000000000000001"
)

type harness struct {
	ctx   context.Context
	store *database.Store
	fake  *platformtest.Fake
	m     *channels.Manager
	c     *commands.Commands
	rec   *platformtest.Responder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()

	db, err := database.Open(filepath.Join(t.TempDir(), "voice.db"), log)
	require.NoError(t, err)
	sqldb, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	store := database.NewStore(db)

	fake := platformtest.NewFake(bot)
	fake.AddChannel(channels.VoiceChannel{ID: parent, GuildID: guild, Name: "Join to create", Type: discordgo.ChannelTypeGuildVoice})
	fake.AddMember(guild, channels.MemberInfo{ID: alice, Username: "alice", DisplayName: "A"})
	fake.AddMember(guild, channels.MemberInfo{ID: carol, Username: "carol", DisplayName: "C"})

	m, err := channels.NewManager(channels.Options{}, store, fake, nil, log)
	require.NoError(t, err)
	renderer := panel.NewRenderer(fake, m, log)
	m.SetNotifier(renderer)

	rec := &platformtest.Responder{}
	handler := panel.NewHandler(m, renderer, rec, time.Hour, log)
	return &harness{
		ctx:   ctx,
		store: store,
		fake:  fake,
		m:     m,
		c:     commands.New(store, m, handler, rec, log),
		rec:   rec,
	}
}

func admin() *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: carol}, Permissions: discordgo.PermissionManageChannels}
}

func command(m *discordgo.Member, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:      "700000000000000001",
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: guild,
		Member:  m,
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}
}

func opt(name string, typ discordgo.ApplicationCommandOptionType, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: typ, Value: value}
}

func (h *harness) content(t *testing.T) string {
	t.Helper()
	resp := h.rec.LastResponse()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	return resp.Data.Content
}

func (h *harness) setMother(t *testing.T, opts ...*discordgo.ApplicationCommandInteractionDataOption) string {
	t.Helper()
	all := append([]*discordgo.ApplicationCommandInteractionDataOption{
		opt("channel", discordgo.ApplicationCommandOptionChannel, parent),
	}, opts...)
	h.c.Handle(h.ctx, command(admin(), "set_mother_channel", all...))
	return h.content(t)
}

func TestPing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.c.Handle(h.ctx, command(nil, "ping"))
	assert.Equal(t, "Pong", h.content(t))

	h.rec.Reset()
	h.c.Handle(h.ctx, command(nil, "unknown"))
	assert.Empty(t, h.rec.Responses())
}

func TestSetMotherChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out := h.setMother(t,
		opt("template", discordgo.ApplicationCommandOptionString, "{user}'s {room}"),
		opt("default_role", discordgo.ApplicationCommandOptionRole, role),
	)
	assert.Contains(t, out, "is now a mother channel")
	assert.Contains(t, out, "{room}", "unknown variables are reported")
	assert.Contains(t, out, "<@&"+role+">")

	p, err := h.store.GetParentChannel(h.ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, "{user}'s {room}", p.TemplateString())
	roles, err := h.store.GetParentChannelRoles(h.ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, []string{role}, roles)

	// running it again updates the parent
	out = h.setMother(t, opt("category", discordgo.ApplicationCommandOptionChannel, category))
	assert.Contains(t, out, "Updated")
	p, err = h.store.GetParentChannel(h.ctx, parent)
	require.NoError(t, err)
	require.NotNil(t, p.CategoryID)
	assert.Equal(t, category, p.CategoryID.String())
	assert.Equal(t, "{user}'s {room}", p.TemplateString(), "omitted options are kept")
}

func TestSetMotherChannel_SecondInSameGuild(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.fake.AddChannel(channels.VoiceChannel{ID: parent2, GuildID: guild, Name: "Join for duo", Type: discordgo.ChannelTypeGuildVoice})

	assert.Contains(t, h.setMother(t), "is now a mother channel")
	h.c.Handle(h.ctx, command(admin(), "set_mother_channel", opt("channel", discordgo.ApplicationCommandOptionChannel, parent2)))
	out := h.content(t)
	assert.Contains(t, out, "<#"+parent2+"> is now a mother channel")
	assert.NotContains(t, out, "Updated")

	parents, err := h.store.GetParentChannelsByGuild(h.ctx, guild)
	require.NoError(t, err)
	assert.Len(t, parents, 2)

	h.c.Handle(h.ctx, command(admin(), "temp_voice_info"))
	resp := h.rec.LastResponse()
	require.Len(t, resp.Data.Embeds, 1)
	assert.Len(t, resp.Data.Embeds[0].Fields, 2)
}

func TestSetMotherChannel_RequiresManageChannels(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	member := &discordgo.Member{User: &discordgo.User{ID: alice}}
	h.c.Handle(h.ctx, command(member, "set_mother_channel", opt("channel", discordgo.ApplicationCommandOptionChannel, parent)))
	assert.Contains(t, h.content(t), "Manage Channels")

	ok, err := h.store.IsParentChannel(h.ctx, parent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveMotherChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.c.Handle(h.ctx, command(admin(), "remove_mother_channel", opt("channel", discordgo.ApplicationCommandOptionChannel, parent)))
	assert.Contains(t, h.content(t), "is not a mother channel")

	h.setMother(t, opt("default_role", discordgo.ApplicationCommandOptionRole, role))

	h.c.Handle(h.ctx, command(admin(), "remove_mother_channel",
		opt("channel", discordgo.ApplicationCommandOptionChannel, parent),
		opt("role", discordgo.ApplicationCommandOptionRole, role)))
	assert.Contains(t, h.content(t), "no longer a default role")
	roles, err := h.store.GetParentChannelRoles(h.ctx, parent)
	require.NoError(t, err)
	assert.Empty(t, roles)
	ok, err := h.store.IsParentChannel(h.ctx, parent)
	require.NoError(t, err)
	assert.True(t, ok, "removing a role keeps the parent")

	h.c.Handle(h.ctx, command(admin(), "remove_mother_channel", opt("channel", discordgo.ApplicationCommandOptionChannel, parent)))
	assert.Contains(t, h.content(t), "no longer a mother channel")
	ok, err = h.store.IsParentChannel(h.ctx, parent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTempVoiceInfo(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.c.Handle(h.ctx, command(admin(), "temp_voice_info"))
	assert.Contains(t, h.content(t), "No mother channels")

	h.setMother(t, opt("default_role", discordgo.ApplicationCommandOptionRole, role))
	h.fake.Connect(guild, alice, parent)
	require.NoError(t, h.m.HandleVoiceTransition(h.ctx, channels.VoiceTransition{
		GuildID: guild, Member: channels.MemberInfo{ID: alice, DisplayName: "A"}, After: parent,
	}))
	childID := h.fake.VoiceChannelOf(guild, alice)

	h.c.Handle(h.ctx, command(admin(), "temp_voice_info"))
	resp := h.rec.LastResponse()
	require.Len(t, resp.Data.Embeds, 1)
	require.Len(t, resp.Data.Embeds[0].Fields, 1)
	value := resp.Data.Embeds[0].Fields[0].Value
	assert.Contains(t, value, "Template: default")
	assert.Contains(t, value, "<@&"+role+">")
	assert.Contains(t, value, "Active channels: 1")
	assert.Contains(t, value, "<#"+childID+"> owned by <@"+alice+">")
}

func TestForceCleanup(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.setMother(t)

	h.fake.Connect(guild, alice, parent)
	require.NoError(t, h.m.HandleVoiceTransition(h.ctx, channels.VoiceTransition{
		GuildID: guild, Member: channels.MemberInfo{ID: alice, DisplayName: "A"}, After: parent,
	}))
	childID := h.fake.VoiceChannelOf(guild, alice)
	require.NoError(t, h.fake.DeleteChannel(h.ctx, childID))

	h.rec.Reset()
	h.c.Handle(h.ctx, command(admin(), "force_cleanup"))
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, h.rec.LastResponse().Type)
	report := h.rec.LastFollowUp()
	require.NotNil(t, report)
	assert.Contains(t, report.Content, "Records of deleted channels removed: 1")

	_, err := h.store.GetChildChannel(h.ctx, childID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestAdminPanelCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.setMother(t)

	h.c.Handle(h.ctx, command(admin(), "admin_panel"))
	assert.True(t, strings.HasPrefix(h.content(t), "❌"), "carol is not in a channel")

	h.fake.Connect(guild, alice, parent)
	require.NoError(t, h.m.HandleVoiceTransition(h.ctx, channels.VoiceTransition{
		GuildID: guild, Member: channels.MemberInfo{ID: alice, DisplayName: "A"}, After: parent,
	}))
	childID := h.fake.VoiceChannelOf(guild, alice)

	h.c.Handle(h.ctx, command(admin(), "admin_panel", opt("channel", discordgo.ApplicationCommandOptionChannel, childID)))
	resp := h.rec.LastResponse()
	require.Len(t, resp.Data.Embeds, 1)
	assert.Len(t, resp.Data.Components, 2)

	h.c.Handle(h.ctx, command(admin(), "admin_panel", opt("channel", discordgo.ApplicationCommandOptionChannel, parent)))
	assert.Contains(t, h.content(t), "not a temporary voice channel")
}
