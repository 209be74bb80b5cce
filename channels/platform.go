package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrChannelGone is returned when the platform no longer knows the channel.
	ErrChannelGone = errors.New("channel no longer exists")
	// ErrMessageGone is returned when a referenced message was deleted.
	ErrMessageGone = errors.New("message no longer exists")
	// ErrPermissionDenied means the bot lacks the rights for the operation.
	ErrPermissionDenied = errors.New("missing permissions")

	ErrNotManaged     = errors.New("not a temporary voice channel")
	ErrNotOwner       = errors.New("not the channel owner")
	ErrNotAdmin       = errors.New("manage channels permission required")
	ErrNotPresent     = errors.New("member is not in the channel")
	ErrOwnerPresent   = errors.New("owner is still in the channel")
	ErrAlreadyOwner   = errors.New("member already owns the channel")
	ErrAlreadyClaimed = errors.New("ownership was already claimed")
	ErrInvalidInput   = errors.New("invalid input")
)

// PlatformError is a request failure that is neither a permission problem nor a missing entity.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// ValidationError carries a message that can be shown to the member as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// MemberInfo is the part of a guild member the lifecycle cares about.
type MemberInfo struct {
	ID          string
	Username    string
	DisplayName string
	Bot         bool
}

// MemberInfoFrom converts a discordgo member; userID is used when m carries no user.
func MemberInfoFrom(m *discordgo.Member, userID string) MemberInfo {
	info := MemberInfo{ID: userID}
	if m == nil {
		return info
	}
	if m.User != nil {
		info.ID = m.User.ID
		info.Username = m.User.Username
		info.Bot = m.User.Bot
		info.DisplayName = m.User.Username
		if m.User.GlobalName != "" {
			info.DisplayName = m.User.GlobalName
		}
	}
	if m.Nick != "" {
		info.DisplayName = m.Nick
	}
	return info
}

// VoiceChannel is a live voice channel as the platform reports it.
type VoiceChannel struct {
	ID               string
	GuildID          string
	ParentID         string
	Name             string
	Type             discordgo.ChannelType
	Bitrate          int
	UserLimit        int
	Region           string // "" is automatic
	VideoQualityMode int
	Overwrites       []*discordgo.PermissionOverwrite
}

// Overwrite returns the overwrite for principal id, or nil.
func (c *VoiceChannel) Overwrite(id string) *discordgo.PermissionOverwrite {
	for _, ow := range c.Overwrites {
		if ow.ID == id {
			return ow
		}
	}
	return nil
}

// VoiceChannelSpec describes a voice channel to create.
type VoiceChannelSpec struct {
	Name             string
	ParentID         string
	Bitrate          int
	UserLimit        int
	Region           string
	VideoQualityMode int
	Overwrites       []*discordgo.PermissionOverwrite
}

// ChannelPatch is a partial channel edit. Nil fields are left untouched.
type ChannelPatch struct {
	Name *string
	// UserLimit 0 removes the limit.
	UserLimit *int
	// Region "" selects automatic.
	Region *string
}

// Body renders the patch as the REST payload.
func (p ChannelPatch) Body() map[string]interface{} {
	body := map[string]interface{}{}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.UserLimit != nil {
		body["user_limit"] = *p.UserLimit
	}
	if p.Region != nil {
		if *p.Region == "" {
			body["rtc_region"] = nil
		} else {
			body["rtc_region"] = *p.Region
		}
	}
	return body
}

// Platform is the chat platform as seen by the lifecycle manager.
type Platform interface {
	BotUserID() string

	Channel(ctx context.Context, channelID string) (*VoiceChannel, error)
	CreateVoiceChannel(ctx context.Context, guildID string, spec VoiceChannelSpec) (*VoiceChannel, error)
	EditVoiceChannel(ctx context.Context, channelID string, patch ChannelPatch) error
	DeleteChannel(ctx context.Context, channelID string) error

	SetOverwrite(ctx context.Context, channelID string, ow discordgo.PermissionOverwrite) error
	DeleteOverwrite(ctx context.Context, channelID, targetID string) error
	// BotPermissions are the bot's effective permissions in channelID.
	BotPermissions(channelID string) (int64, error)

	// VoiceMembers lists the user ids currently connected to channelID.
	VoiceMembers(guildID, channelID string) []string
	// VoiceChannelOf is the channel userID is connected to, or "".
	VoiceChannelOf(guildID, userID string) string
	// MoveMember moves userID to channelID; nil disconnects.
	MoveMember(ctx context.Context, guildID, userID string, channelID *string) error
	Member(ctx context.Context, guildID, userID string) (MemberInfo, error)
	// Activity is the name of the game userID is playing, or "".
	Activity(guildID, userID string) string
}

// Messenger sends and edits the interactive messages posted in child channels.
type Messenger interface {
	SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
	EditMessage(ctx context.Context, edit *discordgo.MessageEdit) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}
