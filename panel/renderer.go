package panel

import (
	"context"
	"fmt"

	"github.com/Haibread/tempvoice/channels"
	"github.com/Haibread/tempvoice/models"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Renderer posts and edits the messages attached to child channels. It is the
// manager's channels.Notifier.
type Renderer struct {
	messenger channels.Messenger
	manager   *channels.Manager
	log       *zap.SugaredLogger
}

func NewRenderer(messenger channels.Messenger, manager *channels.Manager, log *zap.SugaredLogger) *Renderer {
	return &Renderer{messenger: messenger, manager: manager, log: log}
}

// ControlPanel renders the owner panel of channelID from live state.
func (r *Renderer) ControlPanel(ctx context.Context, channelID string) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	d, err := r.manager.Snapshot(ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	return ControlPanelEmbed(d), ControlPanelComponents(channelID, d.Channel.Region), nil
}

func (r *Renderer) PostControlPanel(ctx context.Context, child *models.ChildChannel) (string, error) {
	channelID := child.ChannelID.String()
	embed, components, err := r.ControlPanel(ctx, channelID)
	if err != nil {
		return "", err
	}
	msg, err := r.messenger.SendMessage(ctx, channelID, &discordgo.MessageSend{
		Content:    mention(child.OwnerID.String()),
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send control panel: %w", err)
	}
	r.log.Debugw("Posted control panel", "channel", channelID, "message", msg.ID)
	return msg.ID, nil
}

// RefreshControlPanel edits the recorded panel message. It returns
// channels.ErrMessageGone when there is no message left to edit.
func (r *Renderer) RefreshControlPanel(ctx context.Context, child *models.ChildChannel) error {
	msgID := child.ControlMessage()
	if msgID == "" {
		return channels.ErrMessageGone
	}
	channelID := child.ChannelID.String()
	embed, components, err := r.ControlPanel(ctx, channelID)
	if err != nil {
		return err
	}
	content := mention(child.OwnerID.String())
	embeds := []*discordgo.MessageEmbed{embed}
	return r.messenger.EditMessage(ctx, &discordgo.MessageEdit{
		ID:         msgID,
		Channel:    channelID,
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	})
}

func (r *Renderer) PostInheritancePrompt(ctx context.Context, child *models.ChildChannel) (string, error) {
	msg, err := r.messenger.SendMessage(ctx, child.ChannelID.String(), InheritancePrompt(child))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (r *Renderer) RetireInheritancePrompt(ctx context.Context, channelID, messageID string) error {
	return r.messenger.DeleteMessage(ctx, channelID, messageID)
}
