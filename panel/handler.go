package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Haibread/tempvoice/channels"
	"github.com/Haibread/tempvoice/database"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const handlerTimeout = 30 * time.Second

// Handler answers the component and modal interactions of every panel.
type Handler struct {
	manager     *channels.Manager
	renderer    *Renderer
	responder   Responder
	viewTimeout time.Duration
	log         *zap.SugaredLogger

	now func() time.Time
}

func NewHandler(manager *channels.Manager, renderer *Renderer, responder Responder, viewTimeout time.Duration, log *zap.SugaredLogger) *Handler {
	return &Handler{
		manager:     manager,
		renderer:    renderer,
		responder:   responder,
		viewTimeout: viewTimeout,
		log:         log,
		now:         time.Now,
	}
}

// InteractionCreate is the discordgo handler. Slash commands are left to the commands package.
func (h *Handler) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionMessageComponent, discordgo.InteractionModalSubmit:
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	h.Handle(ctx, i.Interaction)
}

// Handle routes one interaction. Interactions not issued by this package are ignored.
func (h *Handler) Handle(ctx context.Context, in *discordgo.Interaction) {
	var customID string
	switch in.Type {
	case discordgo.InteractionMessageComponent:
		customID = in.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		customID = in.ModalSubmitData().CustomID
	default:
		return
	}
	if !IsPanelID(customID) {
		return
	}
	if in.Member == nil || in.Member.User == nil {
		return
	}

	log := h.log.With("custom_id", customID, "guild", in.GuildID, "user", in.Member.User.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Recovered from panic in panel handler", "panic", r)
		}
	}()

	id, err := ParseCustomID(customID)
	if err != nil {
		log.Warnw("Ignoring malformed custom id", "error", err)
		return
	}
	r := &reply{h: h, in: in, log: log}

	if id.Expired(h.now(), h.viewTimeout) {
		h.expire(ctx, r)
		return
	}

	actor := channels.Actor{UserID: in.Member.User.ID}
	if id.Action.Admin() {
		if !isAdmin(in.Member) {
			r.fail(ctx, channels.ErrNotAdmin, id.Action)
			return
		}
		actor.Admin = true
	}

	switch id.Action {
	case ActionRename:
		h.openRename(ctx, r, id, actor)
	case ActionLimit:
		h.openLimit(ctx, r, id, actor)
	case ActionMembers:
		h.openMembers(ctx, r, id, actor)
	case ActionPerms:
		h.showPermissions(ctx, r, id, actor)
	case ActionDetails, ActionAdminDetails:
		h.showDetails(ctx, r, id, actor)
	case ActionAdminDelete:
		h.confirmDelete(ctx, r, id)
	case ActionAdminConfirm:
		h.forceDelete(ctx, r, id, actor)
	case ActionAdminCancel:
		h.update(ctx, r, "Deletion cancelled.")
	default:
		h.mutate(ctx, r, id, actor)
	}
}

func isAdmin(m *discordgo.Member) bool {
	return m.Permissions&(discordgo.PermissionManageChannels|discordgo.PermissionAdministrator) != 0
}

// OpenAdminPanel answers in with the admin panel of channelID.
func (h *Handler) OpenAdminPanel(ctx context.Context, in *discordgo.Interaction, channelID string) {
	log := h.log.With("guild", in.GuildID, "channel", channelID)
	r := &reply{h: h, in: in, log: log}
	if in.Member == nil || in.Member.User == nil || !isAdmin(in.Member) {
		r.fail(ctx, channels.ErrNotAdmin, "admin_panel")
		return
	}
	actor := channels.Actor{UserID: in.Member.User.ID, Admin: true}
	d, err := h.manager.Details(ctx, actor, channelID)
	if err != nil {
		r.fail(ctx, err, "admin_panel")
		return
	}
	components := AdminPanelComponents(channelID, h.now())
	r.respond(ctx, "", []*discordgo.MessageEmbed{AdminPanelEmbed(d)}, components)
	h.expireLater(in, components)
}

func (h *Handler) openRename(ctx context.Context, r *reply, id CustomID, actor channels.Actor) {
	d, err := h.manager.Details(ctx, actor, id.ChannelID)
	if err != nil {
		r.fail(ctx, err, id.Action)
		return
	}
	if err := h.responder.Respond(ctx, r.in, RenameModal(id.ChannelID, d.Channel.Name)); err != nil {
		r.log.Errorw("Failed to open rename modal", "error", err)
	}
}

func (h *Handler) openLimit(ctx context.Context, r *reply, id CustomID, actor channels.Actor) {
	d, err := h.manager.Details(ctx, actor, id.ChannelID)
	if err != nil {
		r.fail(ctx, err, id.Action)
		return
	}
	if err := h.responder.Respond(ctx, r.in, LimitModal(id.ChannelID, d.Channel.UserLimit)); err != nil {
		r.log.Errorw("Failed to open user limit modal", "error", err)
	}
}

func (h *Handler) openMembers(ctx context.Context, r *reply, id CustomID, actor channels.Actor) {
	if _, err := h.manager.Details(ctx, actor, id.ChannelID); err != nil {
		r.fail(ctx, err, id.Action)
		return
	}
	components := MemberManagerComponents(id.ChannelID, h.now())
	r.respond(ctx, "Pick a member for each action.", nil, components)
	h.expireLater(r.in, components)
}

func (h *Handler) showPermissions(ctx context.Context, r *reply, id CustomID, actor channels.Actor) {
	if !r.deferReply(ctx) {
		return
	}
	views, err := h.manager.Permissions(ctx, actor, id.ChannelID)
	if err != nil {
		r.fail(ctx, err, id.Action)
		return
	}
	r.respond(ctx, "", []*discordgo.MessageEmbed{PermissionsEmbed(r.in.GuildID, views)}, nil)
}

func (h *Handler) showDetails(ctx context.Context, r *reply, id CustomID, actor channels.Actor) {
	if !r.deferReply(ctx) {
		return
	}
	d, err := h.manager.Details(ctx, actor, id.ChannelID)
	if err != nil {
		r.fail(ctx, err, id.Action)
		return
	}
	r.respond(ctx, "", []*discordgo.MessageEmbed{DetailsEmbed(d)}, nil)
}

func (h *Handler) confirmDelete(ctx context.Context, r *reply, id CustomID) {
	components := DeleteConfirmComponents(id.ChannelID, h.now())
	r.respond(ctx, fmt.Sprintf("Delete <#%s>? Everyone in it will be disconnected.", id.ChannelID), nil, components)
	h.expireLater(r.in, components)
}

func (h *Handler) forceDelete(ctx context.Context, r *reply, id CustomID, actor channels.Actor) {
	if err := h.responder.Respond(ctx, r.in, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		r.log.Errorw("Failed to defer delete confirmation", "error", err)
		return
	}
	r.deferred = true
	if err := h.manager.ForceDelete(ctx, actor, id.ChannelID); err != nil {
		r.fail(ctx, err, id.Action)
		return
	}
	content := "🗑️ Channel deleted."
	components := disabledFrom(r.in)
	if err := h.responder.EditResponse(ctx, r.in, &discordgo.WebhookEdit{Content: &content, Components: &components}); err != nil {
		r.log.Warnw("Failed to update delete confirmation", "error", err)
	}
}

// update replaces the message the component is attached to with content and
// disables its components.
func (h *Handler) update(ctx context.Context, r *reply, content string) {
	err := h.responder.Respond(ctx, r.in, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: disabledFrom(r.in),
		},
	})
	if err != nil {
		r.log.Errorw("Failed to update message", "error", err)
	}
}

func (h *Handler) expire(ctx context.Context, r *reply) {
	r.log.Debug("Panel view expired")
	h.update(ctx, r, expiredViewNotice)
}

func disabledFrom(in *discordgo.Interaction) []discordgo.MessageComponent {
	if in.Message == nil {
		return []discordgo.MessageComponent{}
	}
	return DisableComponents(in.Message.Components)
}

// expireLater disables an ephemeral view once it times out.
func (h *Handler) expireLater(in *discordgo.Interaction, components []discordgo.MessageComponent) {
	disabled := DisableComponents(components)
	time.AfterFunc(h.viewTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		content := expiredViewNotice
		if err := h.responder.EditResponse(ctx, in, &discordgo.WebhookEdit{Content: &content, Components: &disabled}); err != nil {
			h.log.Debugw("Failed to disable expired view", "interaction", in.ID, "error", err)
		}
	})
}

// mutate runs a state changing action, then refreshes the channel's panel.
func (h *Handler) mutate(ctx context.Context, r *reply, id CustomID, actor channels.Actor) {
	if !r.deferReply(ctx) {
		return
	}
	msg, err := h.apply(ctx, r.in, id, actor)
	if err != nil {
		r.fail(ctx, err, id.Action)
		return
	}
	r.log.Infow("Applied panel action", "action", id.Action, "channel", id.ChannelID)
	embeds, components := h.refresh(ctx, r, id.ChannelID)
	r.respond(ctx, "✅ "+msg, embeds, components)
}

func (h *Handler) apply(ctx context.Context, in *discordgo.Interaction, id CustomID, actor channels.Actor) (string, error) {
	m, ch := h.manager, id.ChannelID
	switch id.Action {
	case ActionPublic:
		return "The channel is now public.", m.SetVisibility(ctx, actor, ch, channels.Public)
	case ActionLock:
		return "The channel is now locked.", m.SetVisibility(ctx, actor, ch, channels.Locked)
	case ActionHide:
		return "The channel is now hidden.", m.SetVisibility(ctx, actor, ch, channels.Hidden)
	case ActionReset, ActionAdminReset:
		return "Permissions were reset to the defaults.", m.ResetPermissions(ctx, actor, ch)
	case ActionRegion:
		region, err := selected(in)
		if err != nil {
			return "", err
		}
		return "Region set to " + region + ".", m.SetRegion(ctx, actor, ch, region)
	case ActionKick:
		return h.onTarget(in, "Disconnected %s.", func(target string) error { return m.Kick(ctx, actor, ch, target) })
	case ActionBan:
		return h.onTarget(in, "Banned %s from the channel.", func(target string) error { return m.Ban(ctx, actor, ch, target) })
	case ActionAllow:
		return h.onTarget(in, "%s can now join the channel.", func(target string) error { return m.Allow(ctx, actor, ch, target) })
	case ActionUnban:
		return h.onTarget(in, "Cleared the permissions of %s.", func(target string) error { return m.Unban(ctx, actor, ch, target) })
	case ActionTransfer, ActionAdminTransfer:
		return h.onTarget(in, "%s now owns the channel.", func(target string) error {
			_, err := m.TransferOwnership(ctx, actor, ch, target)
			return err
		})
	case ActionClaim:
		_, err := m.ClaimInheritance(ctx, ch, actor.UserID)
		return "You now own this channel.", err
	case ActionAdminClaim:
		_, err := m.ForceClaim(ctx, actor, ch)
		return "You now own this channel.", err
	case ActionAdminKickAll:
		n, err := m.MassKick(ctx, actor, ch)
		return fmt.Sprintf("Disconnected %d members.", n), err
	case ActionRenameSubmit:
		return "Channel renamed.", m.Rename(ctx, actor, ch, modalValue(in.ModalSubmitData(), renameInputID))
	case ActionLimitSubmit:
		limit, err := channels.ParseUserLimit(modalValue(in.ModalSubmitData(), limitInputID))
		if err != nil {
			return "", err
		}
		return "User limit set to " + limitLabel(limit) + ".", m.SetUserLimit(ctx, actor, ch, limit)
	}
	return "", fmt.Errorf("unknown panel action %q", id.Action)
}

func (h *Handler) onTarget(in *discordgo.Interaction, format string, fn func(target string) error) (string, error) {
	target, err := selected(in)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, mention(target)), fn(target)
}

func selected(in *discordgo.Interaction) (string, error) {
	values := in.MessageComponentData().Values
	if len(values) == 0 || values[0] == "" {
		return "", &channels.ValidationError{Message: "Pick an option first."}
	}
	return values[0], nil
}

// refresh edits the channel's panel. When the panel message is gone the panel is
// returned so it can be rendered into the response instead.
func (h *Handler) refresh(ctx context.Context, r *reply, channelID string) ([]*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	child, err := h.manager.Store().GetChildChannel(ctx, channelID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			r.log.Warnw("Failed to load channel for panel refresh", "channel", channelID, "error", err)
		}
		return nil, nil
	}
	err = h.renderer.RefreshControlPanel(ctx, child)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, channels.ErrMessageGone) {
		r.log.Warnw("Failed to refresh control panel", "channel", channelID, "error", err)
		return nil, nil
	}
	embed, components, err := h.renderer.ControlPanel(ctx, channelID)
	if err != nil {
		r.log.Warnw("Failed to render control panel", "channel", channelID, "error", err)
		return nil, nil
	}
	return []*discordgo.MessageEmbed{embed}, components
}

// reply tracks whether an interaction was deferred so later messages pick
// the right endpoint.
type reply struct {
	h        *Handler
	in       *discordgo.Interaction
	log      *zap.SugaredLogger
	deferred bool
}

func (r *reply) deferReply(ctx context.Context) bool {
	err := r.h.responder.Respond(ctx, r.in, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		r.log.Errorw("Failed to defer interaction", "error", err)
		return false
	}
	r.deferred = true
	return true
}

// respond sends an ephemeral message, as a follow up once deferred.
func (r *reply) respond(ctx context.Context, content string, embeds []*discordgo.MessageEmbed, components []discordgo.MessageComponent) {
	var err error
	if r.deferred {
		err = r.h.responder.FollowUp(ctx, r.in, &discordgo.WebhookParams{
			Content:    content,
			Embeds:     embeds,
			Components: components,
			Flags:      discordgo.MessageFlagsEphemeral,
		})
	} else {
		err = r.h.responder.Respond(ctx, r.in, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    content,
				Embeds:     embeds,
				Components: components,
				Flags:      discordgo.MessageFlagsEphemeral,
			},
		})
	}
	if err != nil {
		r.log.Errorw("Failed to send interaction response", "error", err)
	}
}

func (r *reply) fail(ctx context.Context, err error, action Action) {
	botErr := Classify(err, action)
	if botErr.System {
		r.log.Errorw(botErr.LogMessage, "error", botErr.Err)
	} else {
		r.log.Infow(botErr.LogMessage, "error", err)
	}
	r.respond(ctx, botErr.Content(), nil, nil)
}
