package channels

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const (
	// OwnerAllow is granted to the owner of a child channel.
	OwnerAllow = discordgo.PermissionVoiceConnect |
		discordgo.PermissionViewChannel |
		discordgo.PermissionVoiceMuteMembers |
		discordgo.PermissionVoiceDeafenMembers |
		discordgo.PermissionVoiceMoveMembers |
		discordgo.PermissionManageChannels

	// BotAllow lets the bot post and maintain the control panel.
	BotAllow = discordgo.PermissionViewChannel |
		discordgo.PermissionVoiceConnect |
		discordgo.PermissionSendMessages |
		discordgo.PermissionEmbedLinks |
		discordgo.PermissionAttachFiles |
		discordgo.PermissionReadMessageHistory |
		discordgo.PermissionUseExternalEmojis

	// AccessAllow is connect and view, granted to default roles and allowed members.
	AccessAllow = discordgo.PermissionVoiceConnect | discordgo.PermissionViewChannel
)

// Visibility of a child channel, derived from the @everyone overwrite.
type Visibility int

const (
	Public Visibility = iota
	Locked
	Hidden
)

func (v Visibility) String() string {
	switch v {
	case Locked:
		return "locked"
	case Hidden:
		return "hidden"
	default:
		return "public"
	}
}

// ParseVisibility accepts the names returned by Visibility.String.
func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "public":
		return Public, nil
	case "locked":
		return Locked, nil
	case "hidden":
		return Hidden, nil
	}
	return Public, invalid("unknown visibility %q", s)
}

// VisibilityOf reads the visibility from the live overwrites of ch.
func VisibilityOf(ch *VoiceChannel) Visibility {
	ow := ch.Overwrite(ch.GuildID)
	if ow == nil {
		return Public
	}
	switch {
	case ow.Deny&discordgo.PermissionViewChannel != 0:
		return Hidden
	case ow.Deny&discordgo.PermissionVoiceConnect != 0:
		return Locked
	}
	return Public
}

// everyoneOverwrite keeps unrelated bits of the current @everyone overwrite.
func everyoneOverwrite(ch *VoiceChannel, v Visibility) discordgo.PermissionOverwrite {
	ow := discordgo.PermissionOverwrite{ID: ch.GuildID, Type: discordgo.PermissionOverwriteTypeRole}
	if cur := ch.Overwrite(ch.GuildID); cur != nil {
		ow.Allow, ow.Deny = cur.Allow, cur.Deny
	}
	ow.Allow &^= AccessAllow
	ow.Deny &^= AccessAllow
	switch v {
	case Public:
		ow.Allow |= AccessAllow
	case Locked:
		ow.Allow |= discordgo.PermissionViewChannel
		ow.Deny |= discordgo.PermissionVoiceConnect
	case Hidden:
		ow.Deny |= AccessAllow
	}
	return ow
}

func memberOverwrite(id string, allow, deny int64) discordgo.PermissionOverwrite {
	return discordgo.PermissionOverwrite{ID: id, Type: discordgo.PermissionOverwriteTypeMember, Allow: allow, Deny: deny}
}

func roleOverwrite(id string, allow int64) discordgo.PermissionOverwrite {
	return discordgo.PermissionOverwrite{ID: id, Type: discordgo.PermissionOverwriteTypeRole, Allow: allow}
}

// grant adds allow to the overwrite for id, creating it if needed, and lifts any
// matching deny bits.
func grant(ows []*discordgo.PermissionOverwrite, ow discordgo.PermissionOverwrite) []*discordgo.PermissionOverwrite {
	for _, cur := range ows {
		if cur.ID == ow.ID {
			cur.Allow |= ow.Allow
			cur.Deny &^= ow.Allow
			return ows
		}
	}
	return append(ows, &ow)
}

// childOverwrites copies the parent's overwrites and adds owner, bot and default role grants.
func childOverwrites(parent []*discordgo.PermissionOverwrite, ownerID, botID string, roles []string) []*discordgo.PermissionOverwrite {
	ows := make([]*discordgo.PermissionOverwrite, 0, len(parent)+len(roles)+2)
	for _, ow := range parent {
		cp := *ow
		ows = append(ows, &cp)
	}
	ows = grant(ows, memberOverwrite(ownerID, OwnerAllow, 0))
	if botID != "" {
		ows = grant(ows, memberOverwrite(botID, BotAllow, 0))
	}
	for _, role := range roles {
		ows = grant(ows, roleOverwrite(role, AccessAllow))
	}
	return ows
}

// OverwriteView is a read-only projection of one overwrite.
type OverwriteView struct {
	ID    string
	Role  bool
	Allow []string
	Deny  []string
}

var permissionNames = []struct {
	bit  int64
	name string
}{
	{discordgo.PermissionViewChannel, "view"},
	{discordgo.PermissionVoiceConnect, "connect"},
	{discordgo.PermissionVoiceSpeak, "speak"},
	{discordgo.PermissionVoiceMuteMembers, "mute"},
	{discordgo.PermissionVoiceDeafenMembers, "deafen"},
	{discordgo.PermissionVoiceMoveMembers, "move"},
	{discordgo.PermissionManageChannels, "manage channel"},
	{discordgo.PermissionManageRoles, "manage permissions"},
	{discordgo.PermissionSendMessages, "send messages"},
	{discordgo.PermissionEmbedLinks, "embed links"},
	{discordgo.PermissionAttachFiles, "attach files"},
	{discordgo.PermissionReadMessageHistory, "read history"},
	{discordgo.PermissionUseExternalEmojis, "external emoji"},
}

// PermissionNames names the known bits set in perms.
func PermissionNames(perms int64) []string {
	var names []string
	for _, p := range permissionNames {
		if perms&p.bit != 0 {
			names = append(names, p.name)
		}
	}
	return names
}

// DescribeOverwrites projects the overwrites of ch, roles first.
func DescribeOverwrites(ch *VoiceChannel) []OverwriteView {
	views := make([]OverwriteView, 0, len(ch.Overwrites))
	for _, ow := range ch.Overwrites {
		views = append(views, OverwriteView{
			ID:    ow.ID,
			Role:  ow.Type == discordgo.PermissionOverwriteTypeRole,
			Allow: PermissionNames(ow.Allow),
			Deny:  PermissionNames(ow.Deny),
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Role && !views[j].Role
	})
	return views
}

// ValidateName trims and checks a channel name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("channel name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", invalid("channel name cannot exceed %d characters", MaxNameLength)
	}
	return name, nil
}

// MaxUserLimit is the highest user limit a voice channel accepts.
const MaxUserLimit = 99

// ParseUserLimit accepts an integer in [0, 99]; 0 removes the limit.
func ParseUserLimit(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid("user limit must be a whole number")
	}
	if err := ValidateUserLimit(n); err != nil {
		return 0, err
	}
	return n, nil
}

func ValidateUserLimit(n int) error {
	if n < 0 || n > MaxUserLimit {
		return invalid("user limit must be between 0 and %d", MaxUserLimit)
	}
	return nil
}

// RegionAuto selects the platform's automatic region. It is sent as null.
const RegionAuto = "auto"

// Regions are the voice regions offered in the panel, automatic first.
var Regions = []string{
	RegionAuto,
	"brazil",
	"hongkong",
	"india",
	"japan",
	"rotterdam",
	"russia",
	"singapore",
	"south-korea",
	"southafrica",
	"sydney",
	"us-central",
	"us-east",
	"us-south",
	"us-west",
}

// ParseRegion validates a region name. Automatic returns "".
func ParseRegion(raw string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == RegionAuto {
		return "", nil
	}
	for _, r := range Regions {
		if r == raw {
			return r, nil
		}
	}
	return "", invalid("unknown voice region %q", raw)
}

// RegionLabel is the display name of a stored region value.
func RegionLabel(region string) string {
	if region == "" {
		return RegionAuto
	}
	return region
}
