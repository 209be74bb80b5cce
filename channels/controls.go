package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/Haibread/tempvoice/database"
	"github.com/Haibread/tempvoice/metrics"
	"github.com/Haibread/tempvoice/models"
	"github.com/bwmarrin/discordgo"
)

// Actor is the member invoking a control. Admin is set by the admin panel only.
type Actor struct {
	UserID string
	Admin  bool
}

// authorize re-reads the owner on every call.
func (m *Manager) authorize(ctx context.Context, actor Actor, channelID string) (*models.ChildChannel, error) {
	child, err := m.childOf(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && child.OwnerID.String() != actor.UserID {
		return nil, ErrNotOwner
	}
	return child, nil
}

func (m *Manager) requireBot(channelID string, perms int64) error {
	have, err := m.platform.BotPermissions(channelID)
	if err != nil {
		return err
	}
	if have&discordgo.PermissionAdministrator != 0 || have&perms == perms {
		return nil
	}
	return ErrPermissionDenied
}

func (m *Manager) record(action string, err *error) {
	metrics.ControlActions.WithLabelValues(action, metrics.Result(*err)).Inc()
}

// protect rejects targets whose overwrites the panel must not touch.
func (m *Manager) protect(child *models.ChildChannel, targetID string) error {
	switch targetID {
	case child.OwnerID.String():
		return invalid("this cannot be applied to the channel owner")
	case m.platform.BotUserID():
		return invalid("this cannot be applied to the bot")
	}
	return nil
}

// SetVisibility rewrites the @everyone overwrite of channelID.
func (m *Manager) SetVisibility(ctx context.Context, actor Actor, channelID string, v Visibility) (err error) {
	defer m.record("visibility", &err)

	if _, err := m.authorize(ctx, actor, channelID); err != nil {
		return err
	}
	if err := m.requireBot(channelID, discordgo.PermissionManageRoles); err != nil {
		return err
	}
	live, err := m.platform.Channel(ctx, channelID)
	if err != nil {
		return err
	}
	return m.platform.SetOverwrite(ctx, channelID, everyoneOverwrite(live, v))
}

// Kick disconnects a connected member without touching permissions.
func (m *Manager) Kick(ctx context.Context, actor Actor, channelID, targetID string) (err error) {
	defer m.record("kick", &err)

	child, err := m.authorize(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if err := m.protect(child, targetID); err != nil {
		return err
	}
	if m.platform.VoiceChannelOf(child.GuildID.String(), targetID) != channelID {
		return ErrNotPresent
	}
	if err := m.requireBot(channelID, discordgo.PermissionVoiceMoveMembers); err != nil {
		return err
	}
	return m.platform.MoveMember(ctx, child.GuildID.String(), targetID, nil)
}

// Ban denies the member connect and view, then disconnects them if connected.
func (m *Manager) Ban(ctx context.Context, actor Actor, channelID, targetID string) (err error) {
	defer m.record("ban", &err)

	child, err := m.authorize(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if err := m.protect(child, targetID); err != nil {
		return err
	}
	if err := m.requireBot(channelID, discordgo.PermissionManageRoles); err != nil {
		return err
	}
	if err := m.platform.SetOverwrite(ctx, channelID, memberOverwrite(targetID, 0, AccessAllow)); err != nil {
		return err
	}

	guildID := child.GuildID.String()
	if m.platform.VoiceChannelOf(guildID, targetID) != channelID {
		return nil
	}
	if err := m.requireBot(channelID, discordgo.PermissionVoiceMoveMembers); err != nil {
		return err
	}
	return m.platform.MoveMember(ctx, guildID, targetID, nil)
}

// Allow grants the member connect and view.
func (m *Manager) Allow(ctx context.Context, actor Actor, channelID, targetID string) (err error) {
	defer m.record("allow", &err)

	if _, err := m.authorize(ctx, actor, channelID); err != nil {
		return err
	}
	if targetID == m.platform.BotUserID() {
		return invalid("this cannot be applied to the bot")
	}
	if err := m.requireBot(channelID, discordgo.PermissionManageRoles); err != nil {
		return err
	}
	return m.platform.SetOverwrite(ctx, channelID, memberOverwrite(targetID, AccessAllow, 0))
}

// Unban drops the member's explicit overwrite.
func (m *Manager) Unban(ctx context.Context, actor Actor, channelID, targetID string) (err error) {
	defer m.record("unban", &err)

	child, err := m.authorize(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if err := m.protect(child, targetID); err != nil {
		return err
	}
	if err := m.requireBot(channelID, discordgo.PermissionManageRoles); err != nil {
		return err
	}
	return m.platform.DeleteOverwrite(ctx, channelID, targetID)
}

func (m *Manager) Rename(ctx context.Context, actor Actor, channelID, name string) (err error) {
	defer m.record("rename", &err)

	name, err = ValidateName(name)
	if err != nil {
		return err
	}
	if _, err := m.authorize(ctx, actor, channelID); err != nil {
		return err
	}
	if err := m.requireBot(channelID, discordgo.PermissionManageChannels); err != nil {
		return err
	}
	return m.platform.EditVoiceChannel(ctx, channelID, ChannelPatch{Name: &name})
}

// SetUserLimit applies limit; 0 removes it.
func (m *Manager) SetUserLimit(ctx context.Context, actor Actor, channelID string, limit int) (err error) {
	defer m.record("limit", &err)

	if err := ValidateUserLimit(limit); err != nil {
		return err
	}
	if _, err := m.authorize(ctx, actor, channelID); err != nil {
		return err
	}
	if err := m.requireBot(channelID, discordgo.PermissionManageChannels); err != nil {
		return err
	}
	return m.platform.EditVoiceChannel(ctx, channelID, ChannelPatch{UserLimit: &limit})
}

// SetRegion applies a region from Regions; "auto" or "" selects automatic.
func (m *Manager) SetRegion(ctx context.Context, actor Actor, channelID, region string) (err error) {
	defer m.record("region", &err)

	region, err = ParseRegion(region)
	if err != nil {
		return err
	}
	if _, err := m.authorize(ctx, actor, channelID); err != nil {
		return err
	}
	if err := m.requireBot(channelID, discordgo.PermissionManageChannels); err != nil {
		return err
	}
	return m.platform.EditVoiceChannel(ctx, channelID, ChannelPatch{Region: &region})
}

// ResetPermissions drops every overwrite except the bot's and the owner's, then
// makes the channel public and re-grants the parent's default roles.
func (m *Manager) ResetPermissions(ctx context.Context, actor Actor, channelID string) (err error) {
	defer m.record("reset", &err)

	child, err := m.authorize(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if err := m.requireBot(channelID, discordgo.PermissionManageRoles); err != nil {
		return err
	}
	live, err := m.platform.Channel(ctx, channelID)
	if err != nil {
		return err
	}

	keep := map[string]bool{
		m.platform.BotUserID():  true,
		child.OwnerID.String(): true,
		live.GuildID:           true,
	}
	var errs []error
	for _, ow := range live.Overwrites {
		if keep[ow.ID] {
			continue
		}
		if err := m.platform.DeleteOverwrite(ctx, channelID, ow.ID); err != nil {
			errs = append(errs, err)
		}
	}
	// a set replaces the whole overwrite, so @everyone is not deleted first
	if err := m.platform.SetOverwrite(ctx, channelID, roleOverwrite(live.GuildID, AccessAllow)); err != nil {
		errs = append(errs, err)
	}

	roles, err := m.store.GetParentChannelRoles(ctx, child.ParentChannelID.String())
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to get default roles: %w", err))
	}
	for _, role := range roles {
		if err := m.platform.SetOverwrite(ctx, channelID, roleOverwrite(role, AccessAllow)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Permissions lists the live overwrites of channelID.
func (m *Manager) Permissions(ctx context.Context, actor Actor, channelID string) ([]OverwriteView, error) {
	if _, err := m.authorize(ctx, actor, channelID); err != nil {
		return nil, err
	}
	live, err := m.platform.Channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return DescribeOverwrites(live), nil
}

// ChannelDetails is the panel's view of a child channel.
type ChannelDetails struct {
	Child      *models.ChildChannel
	Channel    *VoiceChannel
	Members    []string
	Visibility Visibility
}

func (m *Manager) Details(ctx context.Context, actor Actor, channelID string) (*ChannelDetails, error) {
	if _, err := m.authorize(ctx, actor, channelID); err != nil {
		return nil, err
	}
	return m.Snapshot(ctx, channelID)
}

// Snapshot reads the child row with its parent and the live channel state.
func (m *Manager) Snapshot(ctx context.Context, channelID string) (*ChannelDetails, error) {
	child, err := m.store.GetChildChannelWithParent(ctx, channelID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotManaged
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child channel %s: %w", channelID, err)
	}
	live, err := m.platform.Channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &ChannelDetails{
		Child:      child,
		Channel:    live,
		Members:    m.platform.VoiceMembers(child.GuildID.String(), channelID),
		Visibility: VisibilityOf(live),
	}, nil
}

// ForceDelete deletes a child channel regardless of its members.
func (m *Manager) ForceDelete(ctx context.Context, actor Actor, channelID string) (err error) {
	defer m.record("force_delete", &err)

	if !actor.Admin {
		return ErrNotAdmin
	}
	child, err := m.childOf(ctx, channelID)
	if err != nil {
		return err
	}
	return m.reap(ctx, child, "forced", true)
}

// MassKick disconnects every member of channelID and returns how many were moved.
func (m *Manager) MassKick(ctx context.Context, actor Actor, channelID string) (kicked int, err error) {
	defer m.record("mass_kick", &err)

	if !actor.Admin {
		return 0, ErrNotAdmin
	}
	child, err := m.childOf(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if err := m.requireBot(channelID, discordgo.PermissionVoiceMoveMembers); err != nil {
		return 0, err
	}
	guildID := child.GuildID.String()
	var errs []error
	for _, userID := range m.platform.VoiceMembers(guildID, channelID) {
		if err := m.platform.MoveMember(ctx, guildID, userID, nil); err != nil {
			errs = append(errs, err)
			continue
		}
		kicked++
	}
	return kicked, errors.Join(errs...)
}
