package panel

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Responder answers interactions.
type Responder interface {
	Respond(ctx context.Context, in *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	FollowUp(ctx context.Context, in *discordgo.Interaction, params *discordgo.WebhookParams) error
	// EditResponse edits the original response, valid while the interaction token is.
	EditResponse(ctx context.Context, in *discordgo.Interaction, edit *discordgo.WebhookEdit) error
}

// SessionResponder answers through a discordgo session.
type SessionResponder struct {
	s *discordgo.Session
}

func NewSessionResponder(s *discordgo.Session) *SessionResponder {
	return &SessionResponder{s: s}
}

func (r *SessionResponder) Respond(ctx context.Context, in *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return r.s.InteractionRespond(in, resp, discordgo.WithContext(ctx))
}

func (r *SessionResponder) FollowUp(ctx context.Context, in *discordgo.Interaction, params *discordgo.WebhookParams) error {
	_, err := r.s.FollowupMessageCreate(in, true, params, discordgo.WithContext(ctx))
	return err
}

func (r *SessionResponder) EditResponse(ctx context.Context, in *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	_, err := r.s.InteractionResponseEdit(in, edit, discordgo.WithContext(ctx))
	return err
}
