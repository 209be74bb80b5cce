package commands

import (
	"context"
	"time"

	"github.com/Haibread/tempvoice/channels"
	"github.com/Haibread/tempvoice/database"
	"github.com/Haibread/tempvoice/panel"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const handlerTimeout = 30 * time.Second

var (
	manageChannels = int64(discordgo.PermissionManageChannels)
	guildOnly      = false
	minTemplate    = 1

	voiceChannels    = []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice}
	categoryChannels = []discordgo.ChannelType{discordgo.ChannelTypeGuildCategory}

	botCommands = []*discordgo.ApplicationCommand{
		{
			Type:        discordgo.ChatApplicationCommand,
			Name:        "ping",
			Description: "Basic command",
		},
		{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     "set_mother_channel",
			Description:              "Make a voice channel create a temporary channel for everyone who joins it",
			DefaultMemberPermissions: &manageChannels,
			DMPermission:             &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Voice channel members join to get their own channel",
					ChannelTypes: voiceChannels,
					Required:     true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "category",
					Description:  "Category for the created channels (default: the channel's own)",
					ChannelTypes: categoryChannels,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "template",
					Description: "Channel name, with {user}, {user_displayname}, {number}, {icao} or {game}",
					MinLength:   &minTemplate,
					MaxLength:   channels.MaxNameLength,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "default_role",
					Description: "Role allowed to see and join every created channel",
				},
			},
		},
		{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     "remove_mother_channel",
			Description:              "Stop a voice channel from creating temporary channels",
			DefaultMemberPermissions: &manageChannels,
			DMPermission:             &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "The mother channel",
					ChannelTypes: voiceChannels,
					Required:     true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "Only remove this default role",
				},
			},
		},
		{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     "temp_voice_info",
			Description:              "List the mother channels of this server and their temporary channels",
			DefaultMemberPermissions: &manageChannels,
			DMPermission:             &guildOnly,
		},
		{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     "force_cleanup",
			Description:              "Drop records of temporary channels that no longer exist",
			DefaultMemberPermissions: &manageChannels,
			DMPermission:             &guildOnly,
		},
		{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     "admin_panel",
			Description:              "Open the admin controls of a temporary channel",
			DefaultMemberPermissions: &manageChannels,
			DMPermission:             &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Temporary channel (default: the one you are in)",
					ChannelTypes: voiceChannels,
				},
			},
		},
	}
)

// Commands answers the slash commands of the bot.
type Commands struct {
	store     *database.Store
	manager   *channels.Manager
	panel     *panel.Handler
	responder panel.Responder
	log       *zap.SugaredLogger

	commandHandlers map[string]func(ctx context.Context, in *discordgo.Interaction)
}

func New(store *database.Store, manager *channels.Manager, panelHandler *panel.Handler, responder panel.Responder, log *zap.SugaredLogger) *Commands {
	c := &Commands{
		store:     store,
		manager:   manager,
		panel:     panelHandler,
		responder: responder,
		log:       log,
	}
	c.commandHandlers = map[string]func(ctx context.Context, in *discordgo.Interaction){
		"ping":                  c.Ping,
		"set_mother_channel":    c.SetMotherChannel,
		"remove_mother_channel": c.RemoveMotherChannel,
		"temp_voice_info":       c.TempVoiceInfo,
		"force_cleanup":         c.ForceCleanup,
		"admin_panel":           c.AdminPanel,
	}
	return c
}

// RegisterCommands overwrites the application commands in guildID (global when
// empty) and installs the interaction handler.
func (c *Commands) RegisterCommands(dg *discordgo.Session, guildID string) error {
	c.log.Infow("Adding commands", "guild", guildID, "count", len(botCommands))
	if _, err := dg.ApplicationCommandBulkOverwrite(dg.State.User.ID, guildID, botCommands); err != nil {
		return err
	}
	dg.AddHandler(c.InteractionCreate)
	return nil
}

// InteractionCreate dispatches slash commands. Components and modals are left to the panel.
func (c *Commands) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	c.Handle(ctx, i.Interaction)
}

func (c *Commands) Handle(ctx context.Context, in *discordgo.Interaction) {
	name := in.ApplicationCommandData().Name
	h, ok := c.commandHandlers[name]
	if !ok {
		c.log.Debugw("Unknown command", "command", name)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("Recovered from panic in command handler", "command", name, "panic", r)
		}
	}()
	h(ctx, in)
}

// RemoveCommands deletes every application command of the bot in guildID.
func RemoveCommands(dg *discordgo.Session, guildID string, log *zap.SugaredLogger) {
	applicationsCommandsAvailable, err := dg.ApplicationCommands(dg.State.User.ID, guildID)
	if err != nil {
		log.Errorw("Could not list commands", "error", err)
		return
	}
	for _, v := range applicationsCommandsAvailable {
		if err = dg.ApplicationCommandDelete(dg.State.User.ID, guildID, v.ID); err != nil {
			log.Infof("Could not delete '%s' command: %v", v.Name, err)
			continue
		}
		log.Infof("Deleted command %s", v.Name)
	}
	log.Info("Deleted commands")
}
