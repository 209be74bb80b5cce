package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/Haibread/tempvoice/database"
	"github.com/Haibread/tempvoice/metrics"
	"github.com/Haibread/tempvoice/models"
)

// OfferInheritance posts a claim prompt once the owner has left. An empty channel
// is reaped instead, and a channel with an open prompt gets no second one.
func (m *Manager) OfferInheritance(ctx context.Context, child *models.ChildChannel) error {
	guildID, channelID := child.GuildID.String(), child.ChannelID.String()
	members := m.platform.VoiceMembers(guildID, channelID)
	if len(members) == 0 {
		return m.reap(ctx, child, "empty", false)
	}
	if contains(members, child.OwnerID.String()) {
		return nil
	}

	// reserve the slot so concurrent departures post a single prompt
	if found, _ := m.prompts.ContainsOrAdd(channelID, ""); found {
		return nil
	}
	msgID, err := m.notifier.PostInheritancePrompt(ctx, child)
	if err != nil {
		m.prompts.Remove(channelID)
		return fmt.Errorf("failed to post inheritance prompt in %s: %w", channelID, err)
	}
	m.prompts.Add(channelID, msgID)
	m.log.Infow("Offered channel inheritance", "guild", guildID, "channel", channelID, "owner", child.OwnerID.String())
	return nil
}

// PendingPrompt returns the message id of the open inheritance prompt of channelID.
func (m *Manager) PendingPrompt(channelID string) (string, bool) {
	return m.prompts.Peek(channelID)
}

func (m *Manager) retirePrompt(ctx context.Context, channelID string) {
	msgID, ok := m.prompts.Peek(channelID)
	if !ok {
		return
	}
	m.prompts.Remove(channelID)
	if msgID == "" {
		return
	}
	if err := m.notifier.RetireInheritancePrompt(ctx, channelID, msgID); err != nil && !errors.Is(err, ErrMessageGone) {
		m.log.Warnw("Failed to retire inheritance prompt", "channel", channelID, "message", msgID, "error", err)
	}
}

// ClaimInheritance makes claimantID the owner of channelID. The claimant must be
// connected and the owner must be gone. Only one concurrent claim succeeds; the
// others get ErrAlreadyClaimed.
func (m *Manager) ClaimInheritance(ctx context.Context, channelID, claimantID string) (child *models.ChildChannel, err error) {
	defer func() {
		result := "won"
		switch {
		case errors.Is(err, ErrAlreadyClaimed):
			result = "lost"
		case err != nil:
			result = "rejected"
		}
		metrics.InheritanceClaims.WithLabelValues(result).Inc()
	}()

	current, err := m.childOf(ctx, channelID)
	if err != nil {
		return nil, err
	}
	guildID, ownerID := current.GuildID.String(), current.OwnerID.String()
	if claimantID == ownerID {
		return nil, ErrAlreadyOwner
	}
	members := m.platform.VoiceMembers(guildID, channelID)
	if !contains(members, claimantID) {
		return nil, ErrNotPresent
	}
	if contains(members, ownerID) {
		m.retirePrompt(ctx, channelID)
		return nil, ErrOwnerPresent
	}

	updated, err := m.changeOwner(ctx, current, claimantID)
	if err != nil {
		return nil, err
	}
	m.retirePrompt(ctx, channelID)
	return updated, nil
}

// TransferOwnership hands channelID to targetID. Owners may only pick connected
// members; admins may pick any member of the guild. Bots cannot own channels.
func (m *Manager) TransferOwnership(ctx context.Context, actor Actor, channelID, targetID string) (child *models.ChildChannel, err error) {
	defer m.record("transfer", &err)

	current, err := m.authorize(ctx, actor, channelID)
	if err != nil {
		return nil, err
	}
	if targetID == current.OwnerID.String() {
		return nil, ErrAlreadyOwner
	}
	guildID := current.GuildID.String()
	target, err := m.platform.Member(ctx, guildID, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve member %s: %w", targetID, err)
	}
	if target.Bot {
		return nil, invalid("bots cannot own a channel")
	}
	if !actor.Admin && m.platform.VoiceChannelOf(guildID, targetID) != channelID {
		return nil, ErrNotPresent
	}

	updated, err := m.changeOwner(ctx, current, targetID)
	if err != nil {
		return nil, err
	}
	m.retirePrompt(ctx, channelID)
	return updated, nil
}

// ForceClaim gives an admin ownership of channelID.
func (m *Manager) ForceClaim(ctx context.Context, actor Actor, channelID string) (*models.ChildChannel, error) {
	if !actor.Admin {
		return nil, ErrNotAdmin
	}
	return m.TransferOwnership(ctx, actor, channelID, actor.UserID)
}

// changeOwner swaps the owner in the store first. Only the winner touches the
// overwrites; overwrite failures after that are logged and the row stands.
func (m *Manager) changeOwner(ctx context.Context, child *models.ChildChannel, newOwnerID string) (*models.ChildChannel, error) {
	channelID, oldOwnerID := child.ChannelID.String(), child.OwnerID.String()
	log := m.log.With("guild", child.GuildID.String(), "channel", channelID, "from", oldOwnerID, "to", newOwnerID)

	won, err := m.store.ClaimChildChannelOwner(ctx, channelID, oldOwnerID, newOwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to update owner of %s: %w", channelID, err)
	}
	if !won {
		return nil, ErrAlreadyClaimed
	}

	if err := m.platform.DeleteOverwrite(ctx, channelID, oldOwnerID); err != nil {
		log.Warnw("Failed to remove previous owner overwrite", "error", err)
	}
	if err := m.platform.SetOverwrite(ctx, channelID, memberOverwrite(newOwnerID, OwnerAllow, 0)); err != nil {
		log.Warnw("Failed to grant owner overwrite", "error", err)
	}

	updated, err := m.store.GetChildChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload child channel %s: %w", channelID, err)
	}
	if err := m.notifier.RefreshControlPanel(ctx, updated); err != nil {
		log.Warnw("Failed to refresh control panel", "error", err)
	}
	log.Infow("Channel ownership changed")
	return updated, nil
}

func (m *Manager) childOf(ctx context.Context, channelID string) (*models.ChildChannel, error) {
	child, err := m.store.GetChildChannel(ctx, channelID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotManaged
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child channel %s: %w", channelID, err)
	}
	return child, nil
}
