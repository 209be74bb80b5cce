package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// SessionPlatform implements Platform and Messenger on a discordgo session.
// Voice membership and presences are read from the session state cache.
type SessionPlatform struct {
	s *discordgo.Session
}

func NewSessionPlatform(s *discordgo.Session) *SessionPlatform {
	return &SessionPlatform{s: s}
}

// classify maps REST failures onto the package errors. gone is returned for 404s.
func classify(op string, err error, gone error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownChannel:
				return fmt.Errorf("%s: %w", op, ErrChannelGone)
			case discordgo.ErrCodeUnknownMessage:
				return fmt.Errorf("%s: %w", op, ErrMessageGone)
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
				return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
			}
		}
		if restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusForbidden:
				return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
			case http.StatusNotFound:
				if gone != nil {
					return fmt.Errorf("%s: %w", op, gone)
				}
			}
		}
	}
	return &PlatformError{Op: op, Err: err}
}

func (p *SessionPlatform) BotUserID() string {
	if p.s.State == nil || p.s.State.User == nil {
		return ""
	}
	return p.s.State.User.ID
}

// decodeVoiceChannel also reads the voice fields discordgo.Channel does not carry.
func decodeVoiceChannel(body []byte) (*VoiceChannel, error) {
	var ch discordgo.Channel
	if err := json.Unmarshal(body, &ch); err != nil {
		return nil, err
	}
	var extra struct {
		RTCRegion        *string `json:"rtc_region"`
		VideoQualityMode int     `json:"video_quality_mode"`
	}
	if err := json.Unmarshal(body, &extra); err != nil {
		return nil, err
	}
	vc := &VoiceChannel{
		ID:               ch.ID,
		GuildID:          ch.GuildID,
		ParentID:         ch.ParentID,
		Name:             ch.Name,
		Type:             ch.Type,
		Bitrate:          ch.Bitrate,
		UserLimit:        ch.UserLimit,
		VideoQualityMode: extra.VideoQualityMode,
		Overwrites:       ch.PermissionOverwrites,
	}
	if extra.RTCRegion != nil {
		vc.Region = *extra.RTCRegion
	}
	return vc, nil
}

func (p *SessionPlatform) Channel(ctx context.Context, channelID string) (*VoiceChannel, error) {
	endpoint := discordgo.EndpointChannel(channelID)
	body, err := p.s.RequestWithBucketID(http.MethodGet, endpoint, nil, endpoint, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("get channel", err, ErrChannelGone)
	}
	vc, err := decodeVoiceChannel(body)
	if err != nil {
		return nil, &PlatformError{Op: "decode channel", Err: err}
	}
	return vc, nil
}

func (p *SessionPlatform) CreateVoiceChannel(ctx context.Context, guildID string, spec VoiceChannelSpec) (*VoiceChannel, error) {
	data := map[string]interface{}{
		"name":                  spec.Name,
		"type":                  discordgo.ChannelTypeGuildVoice,
		"user_limit":            spec.UserLimit,
		"permission_overwrites": spec.Overwrites,
	}
	if spec.Bitrate > 0 {
		data["bitrate"] = spec.Bitrate
	}
	if spec.ParentID != "" {
		data["parent_id"] = spec.ParentID
	}
	if spec.Region != "" {
		data["rtc_region"] = spec.Region
	}
	if spec.VideoQualityMode > 0 {
		data["video_quality_mode"] = spec.VideoQualityMode
	}

	endpoint := discordgo.EndpointGuildChannels(guildID)
	body, err := p.s.RequestWithBucketID(http.MethodPost, endpoint, data, endpoint, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("create channel", err, nil)
	}
	vc, err := decodeVoiceChannel(body)
	if err != nil {
		return nil, &PlatformError{Op: "decode channel", Err: err}
	}
	return vc, nil
}

func (p *SessionPlatform) EditVoiceChannel(ctx context.Context, channelID string, patch ChannelPatch) error {
	body := patch.Body()
	if len(body) == 0 {
		return nil
	}
	endpoint := discordgo.EndpointChannel(channelID)
	_, err := p.s.RequestWithBucketID(http.MethodPatch, endpoint, body, endpoint, discordgo.WithContext(ctx))
	return classify("edit channel", err, ErrChannelGone)
}

func (p *SessionPlatform) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := p.s.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return classify("delete channel", err, ErrChannelGone)
}

func (p *SessionPlatform) SetOverwrite(ctx context.Context, channelID string, ow discordgo.PermissionOverwrite) error {
	err := p.s.ChannelPermissionSet(channelID, ow.ID, ow.Type, ow.Allow, ow.Deny, discordgo.WithContext(ctx))
	return classify("set overwrite", err, ErrChannelGone)
}

func (p *SessionPlatform) DeleteOverwrite(ctx context.Context, channelID, targetID string) error {
	err := p.s.ChannelPermissionDelete(channelID, targetID, discordgo.WithContext(ctx))
	if err != nil {
		// a missing overwrite is already deleted
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownOverwrite {
			return nil
		}
	}
	return classify("delete overwrite", err, ErrChannelGone)
}

func (p *SessionPlatform) BotPermissions(channelID string) (int64, error) {
	perms, err := p.s.State.UserChannelPermissions(p.BotUserID(), channelID)
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return 0, fmt.Errorf("bot permissions: %w", ErrChannelGone)
	}
	if err != nil {
		return 0, &PlatformError{Op: "bot permissions", Err: err}
	}
	return perms, nil
}

func (p *SessionPlatform) VoiceMembers(guildID, channelID string) []string {
	guild, err := p.s.State.Guild(guildID)
	if err != nil {
		return nil
	}

	p.s.State.RLock()
	defer p.s.State.RUnlock()
	var users []string
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			users = append(users, vs.UserID)
		}
	}
	return users
}

func (p *SessionPlatform) VoiceChannelOf(guildID, userID string) string {
	vs, err := p.s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

func (p *SessionPlatform) MoveMember(ctx context.Context, guildID, userID string, channelID *string) error {
	err := p.s.GuildMemberMove(guildID, userID, channelID, discordgo.WithContext(ctx))
	return classify("move member", err, nil)
}

func (p *SessionPlatform) Member(ctx context.Context, guildID, userID string) (MemberInfo, error) {
	m, err := p.s.State.Member(guildID, userID)
	if err != nil {
		m, err = p.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return MemberInfo{}, classify("get member", err, ErrNotPresent)
		}
	}
	return MemberInfoFrom(m, userID), nil
}

func (p *SessionPlatform) Activity(guildID, userID string) string {
	presence, err := p.s.State.Presence(guildID, userID)
	if err != nil || presence == nil {
		return ""
	}
	for _, a := range presence.Activities {
		if a.Type == discordgo.ActivityTypeGame || a.Type == discordgo.ActivityTypeCompeting {
			return a.Name
		}
	}
	return ""
}

func (p *SessionPlatform) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	m, err := p.s.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("send message", err, ErrChannelGone)
	}
	return m, nil
}

func (p *SessionPlatform) EditMessage(ctx context.Context, edit *discordgo.MessageEdit) error {
	_, err := p.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return classify("edit message", err, ErrMessageGone)
}

func (p *SessionPlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := p.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	return classify("delete message", err, ErrMessageGone)
}
