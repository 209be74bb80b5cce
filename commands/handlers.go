package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Haibread/tempvoice/channels"
	"github.com/Haibread/tempvoice/database"
	"github.com/Haibread/tempvoice/panel"
	"github.com/bwmarrin/discordgo"
)

const maxInfoFields = 25

func options(in *discordgo.Interaction) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := map[string]*discordgo.ApplicationCommandInteractionDataOption{}
	for _, o := range in.ApplicationCommandData().Options {
		opts[o.Name] = o
	}
	return opts
}

// optionID returns the id or text of option name, or "" when it was not given.
func optionID(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	o, ok := opts[name]
	if !ok {
		return ""
	}
	v, _ := o.Value.(string)
	return strings.TrimSpace(v)
}

func (c *Commands) reply(ctx context.Context, in *discordgo.Interaction, data *discordgo.InteractionResponseData) {
	data.Flags = discordgo.MessageFlagsEphemeral
	err := c.responder.Respond(ctx, in, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		c.log.Errorw("Failed to respond to command", "command", in.ApplicationCommandData().Name, "error", err)
	}
}

func (c *Commands) replyText(ctx context.Context, in *discordgo.Interaction, content string) {
	c.reply(ctx, in, &discordgo.InteractionResponseData{Content: content})
}

func (c *Commands) fail(ctx context.Context, in *discordgo.Interaction, err error) {
	name := in.ApplicationCommandData().Name
	botErr := panel.Classify(err, panel.Action(name))
	if errors.Is(err, database.ErrInvalidID) {
		botErr = panel.NewUserError("That id is not valid.", name+" rejected", err)
	}
	if botErr.System {
		c.log.Errorw(botErr.LogMessage, "guild", in.GuildID, "error", err)
	} else {
		c.log.Infow(botErr.LogMessage, "guild", in.GuildID, "error", err)
	}
	c.replyText(ctx, in, botErr.Content())
}

// requireAdmin rechecks the member permissions the command is registered with.
func (c *Commands) requireAdmin(ctx context.Context, in *discordgo.Interaction) bool {
	if in.Member != nil && in.Member.Permissions&(discordgo.PermissionManageChannels|discordgo.PermissionAdministrator) != 0 {
		return true
	}
	c.fail(ctx, in, channels.ErrNotAdmin)
	return false
}

func (c *Commands) Ping(ctx context.Context, in *discordgo.Interaction) {
	c.replyText(ctx, in, "Pong")
}

// SetMotherChannel registers a parent channel, or updates it when it already is one.
func (c *Commands) SetMotherChannel(ctx context.Context, in *discordgo.Interaction) {
	if !c.requireAdmin(ctx, in) {
		return
	}
	opts := options(in)
	channelID := optionID(opts, "channel")
	roleID := optionID(opts, "default_role")
	var category, template *string
	if v := optionID(opts, "category"); v != "" {
		category = &v
	}
	if v := optionID(opts, "template"); v != "" {
		template = &v
	}

	updated := false
	err := c.store.AddParentChannel(ctx, in.GuildID, channelID, category, template)
	if errors.Is(err, database.ErrConstraintViolation) {
		updated = true
		err = c.store.UpdateParentChannel(ctx, channelID, category, template)
	}
	if err != nil {
		c.fail(ctx, in, fmt.Errorf("failed to save mother channel %s: %w", channelID, err))
		return
	}
	if roleID != "" {
		if err := c.store.AddParentChannelRole(ctx, channelID, roleID); err != nil {
			c.fail(ctx, in, fmt.Errorf("failed to add default role %s: %w", roleID, err))
			return
		}
	}
	c.log.Infow("Set mother channel", "guild", in.GuildID, "channel", channelID, "updated", updated, "role", roleID)

	var b strings.Builder
	if updated {
		fmt.Fprintf(&b, "✅ Updated the mother channel <#%s>.", channelID)
	} else {
		fmt.Fprintf(&b, "✅ <#%s> is now a mother channel. Join it to get your own channel.", channelID)
	}
	if template != nil {
		fmt.Fprintf(&b, "\nName template: `%s`", *template)
		if unknown := channels.UnknownVariables(*template); len(unknown) > 0 {
			fmt.Fprintf(&b, "\n⚠️ Unknown variables are kept as written: {%s}", strings.Join(unknown, "}, {"))
		}
	}
	if category != nil {
		fmt.Fprintf(&b, "\nCategory: <#%s>", *category)
	}
	if roleID != "" {
		fmt.Fprintf(&b, "\nDefault role: <@&%s>", roleID)
	}
	c.replyText(ctx, in, b.String())
}

// RemoveMotherChannel unregisters a parent, or only one of its default roles.
func (c *Commands) RemoveMotherChannel(ctx context.Context, in *discordgo.Interaction) {
	if !c.requireAdmin(ctx, in) {
		return
	}
	opts := options(in)
	channelID := optionID(opts, "channel")
	roleID := optionID(opts, "role")

	parent, err := c.store.GetParentChannel(ctx, channelID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && parent.GuildID.String() != in.GuildID) {
		c.replyText(ctx, in, fmt.Sprintf("❌ <#%s> is not a mother channel.", channelID))
		return
	}
	if err != nil {
		c.fail(ctx, in, err)
		return
	}

	if roleID != "" {
		if err := c.store.RemoveParentChannelRole(ctx, channelID, roleID); err != nil {
			c.fail(ctx, in, fmt.Errorf("failed to remove default role %s: %w", roleID, err))
			return
		}
		c.log.Infow("Removed default role", "guild", in.GuildID, "channel", channelID, "role", roleID)
		c.replyText(ctx, in, fmt.Sprintf("✅ <@&%s> is no longer a default role of <#%s>.", roleID, channelID))
		return
	}

	if err := c.store.DeleteParentChannel(ctx, channelID); err != nil {
		c.fail(ctx, in, fmt.Errorf("failed to delete mother channel %s: %w", channelID, err))
		return
	}
	c.log.Infow("Removed mother channel", "guild", in.GuildID, "channel", channelID)
	c.replyText(ctx, in, fmt.Sprintf("✅ <#%s> is no longer a mother channel. Channels it created are no longer managed.", channelID))
}

// TempVoiceInfo lists the parents of the guild with their settings and live children.
func (c *Commands) TempVoiceInfo(ctx context.Context, in *discordgo.Interaction) {
	if !c.requireAdmin(ctx, in) {
		return
	}
	parents, err := c.store.GetParentChannelsByGuild(ctx, in.GuildID)
	if err != nil {
		c.fail(ctx, in, err)
		return
	}
	if len(parents) == 0 {
		c.replyText(ctx, in, "No mother channels are set up. Use /set_mother_channel to add one.")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Temporary voice channels",
		Color: panel.ColorInfo,
	}
	for i, p := range parents {
		if i == maxInfoFields {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d more not shown", len(parents)-maxInfoFields)}
			break
		}
		channelID := p.ChannelID.String()
		roles, err := c.store.GetParentChannelRoles(ctx, channelID)
		if err != nil {
			c.fail(ctx, in, err)
			return
		}
		children, err := c.store.GetChildChannelsByParent(ctx, channelID)
		if err != nil {
			c.fail(ctx, in, err)
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "<#%s>", channelID)
		if tpl := p.TemplateString(); tpl != "" {
			fmt.Fprintf(&b, "\nTemplate: `%s`", tpl)
		} else {
			b.WriteString("\nTemplate: default")
		}
		if p.CategoryID != nil {
			fmt.Fprintf(&b, "\nCategory: <#%s>", p.CategoryID.String())
		}
		if len(roles) > 0 {
			b.WriteString("\nDefault roles:")
			for _, r := range roles {
				fmt.Fprintf(&b, " <@&%s>", r)
			}
		}
		fmt.Fprintf(&b, "\nActive channels: %d", len(children))
		for _, child := range children {
			fmt.Fprintf(&b, "\n• <#%s> owned by <@%s>", child.ChannelID.String(), child.OwnerID.String())
		}
		value := b.String()
		if r := []rune(value); len(r) > 1024 {
			value = string(r[:1021]) + "..."
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Mother channel %d", i+1),
			Value: value,
		})
	}
	c.reply(ctx, in, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}})
}

// ForceCleanup reconciles the store of the guild with its live channels.
func (c *Commands) ForceCleanup(ctx context.Context, in *discordgo.Interaction) {
	if !c.requireAdmin(ctx, in) {
		return
	}
	err := c.responder.Respond(ctx, in, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		c.log.Errorw("Failed to defer force_cleanup", "error", err)
		return
	}

	report, err := c.manager.ForceCleanup(ctx, in.GuildID)
	content := fmt.Sprintf("🧹 Checked %d temporary channels.\nDeleted empty channels: %d\nRecords of deleted channels removed: %d\nDeleted mother channels removed: %d",
		report.Checked, report.Reaped, report.OrphanChildren, report.OrphanParents)
	if report.Errors > 0 || err != nil {
		c.log.Warnw("Cleanup finished with errors", "guild", in.GuildID, "errors", report.Errors, "error", err)
		content += fmt.Sprintf("\n⚠️ %d channels could not be checked, see the logs.", report.Errors)
	}
	c.log.Infow("Forced cleanup", "guild", in.GuildID, "checked", report.Checked, "reaped", report.Reaped,
		"orphan_children", report.OrphanChildren, "orphan_parents", report.OrphanParents)

	if err := c.responder.FollowUp(ctx, in, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	}); err != nil {
		c.log.Errorw("Failed to send force_cleanup report", "error", err)
	}
}

// AdminPanel opens the admin panel of the given channel, or of the channel the
// invoker is connected to.
func (c *Commands) AdminPanel(ctx context.Context, in *discordgo.Interaction) {
	if !c.requireAdmin(ctx, in) {
		return
	}
	channelID := optionID(options(in), "channel")
	if channelID == "" && in.Member.User != nil {
		channelID = c.manager.Platform().VoiceChannelOf(in.GuildID, in.Member.User.ID)
	}
	if channelID == "" {
		c.replyText(ctx, in, "❌ Join a temporary channel or pick one with the channel option.")
		return
	}
	c.panel.OpenAdminPanel(ctx, in, channelID)
}
