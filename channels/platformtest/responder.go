package platformtest

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Responder records interaction responses. It satisfies panel.Responder.
type Responder struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	followUps []*discordgo.WebhookParams
	edits     []*discordgo.WebhookEdit
}

func (r *Responder) Respond(_ context.Context, _ *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
	return nil
}

func (r *Responder) FollowUp(_ context.Context, _ *discordgo.Interaction, params *discordgo.WebhookParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followUps = append(r.followUps, params)
	return nil
}

func (r *Responder) EditResponse(_ context.Context, _ *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, edit)
	return nil
}

func (r *Responder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses, r.followUps, r.edits = nil, nil, nil
}

func (r *Responder) Responses() []*discordgo.InteractionResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), r.responses...)
}

func (r *Responder) FollowUps() []*discordgo.WebhookParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*discordgo.WebhookParams(nil), r.followUps...)
}

func (r *Responder) Edits() []*discordgo.WebhookEdit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*discordgo.WebhookEdit(nil), r.edits...)
}

// LastResponse returns the latest response, or nil.
func (r *Responder) LastResponse() *discordgo.InteractionResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.responses) == 0 {
		return nil
	}
	return r.responses[len(r.responses)-1]
}

// LastFollowUp returns the latest follow up, or nil.
func (r *Responder) LastFollowUp() *discordgo.WebhookParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.followUps) == 0 {
		return nil
	}
	return r.followUps[len(r.followUps)-1]
}
