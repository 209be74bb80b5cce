package channels

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

const handlerTimeout = 30 * time.Second

// VCUpdate is the discordgo handler for voice state updates.
func (m *Manager) VCUpdate(s *discordgo.Session, i *discordgo.VoiceStateUpdate) {
	defer m.guard("voice state update", "guild", i.GuildID, "user", i.UserID)

	t := VoiceTransition{
		GuildID: i.GuildID,
		After:   i.ChannelID,
		Member:  MemberInfoFrom(i.Member, i.UserID),
	}
	if i.BeforeUpdate != nil {
		t.Before = i.BeforeUpdate.ChannelID
	}
	if t.Before == t.After {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if i.Member == nil || i.Member.User == nil {
		if info, err := m.platform.Member(ctx, i.GuildID, i.UserID); err == nil {
			t.Member = info
		}
	}
	if err := m.HandleVoiceTransition(ctx, t); err != nil {
		m.log.Errorw("Failed to handle voice state update", "guild", i.GuildID, "user", i.UserID,
			"before", t.Before, "after", t.After, "error", err)
	}
}

// ChannelDelete reports managed channels deleted outside the bot. Their rows stay
// until force_cleanup.
func (m *Manager) ChannelDelete(s *discordgo.Session, e *discordgo.ChannelDelete) {
	defer m.guard("channel delete", "channel", e.ID)

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	parent, child, err := m.store.LookupChannel(ctx, e.ID)
	if err != nil {
		m.log.Debugw("Failed to look up deleted channel", "channel", e.ID, "error", err)
		return
	}
	switch {
	case child != nil:
		m.prompts.Remove(e.ID)
		m.log.Warnw("Child channel deleted outside the bot, run force_cleanup", "guild", e.GuildID, "channel", e.ID)
	case parent != nil:
		m.log.Warnw("Parent channel deleted outside the bot, run force_cleanup", "guild", e.GuildID, "channel", e.ID)
	}
}
