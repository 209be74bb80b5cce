package panel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Haibread/tempvoice/channels"
	"github.com/Haibread/tempvoice/models"
	"github.com/bwmarrin/discordgo"
)

// Embed colors
const (
	ColorPrimary = 0x5865F2
	ColorSuccess = 0x57F287
	ColorDanger  = 0xED4245
	ColorWarning = 0xFEE75C
	ColorInfo    = 0x3498DB
)

const (
	maxListedMembers  = 20
	maxEmbedDesc      = 4096
	maxFieldValue     = 1024
	renameInputID     = "name"
	limitInputID      = "limit"
	expiredViewNotice = "This view has expired. Open it again from the control panel."
)

func mention(userID string) string {
	return "<@" + userID + ">"
}

func limitLabel(n int) string {
	if n == 0 {
		return "Unlimited"
	}
	return strconv.Itoa(n)
}

func memberList(ids []string) string {
	if len(ids) == 0 {
		return "Nobody"
	}
	shown := ids
	if len(shown) > maxListedMembers {
		shown = shown[:maxListedMembers]
	}
	parts := make([]string, 0, len(shown))
	for _, id := range shown {
		parts = append(parts, mention(id))
	}
	out := strings.Join(parts, " ")
	if rest := len(ids) - len(shown); rest > 0 {
		out += fmt.Sprintf(" and %d more", rest)
	}
	return out
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// ControlPanelEmbed summarises the live state of a child channel.
func ControlPanelEmbed(d *channels.ChannelDetails) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🔊 " + d.Channel.Name,
		Description: "Manage your channel with the buttons below. Only the owner can use them.",
		Color:       ColorPrimary,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Owner", Value: mention(d.Child.OwnerID.String()), Inline: true},
			{Name: "Visibility", Value: d.Visibility.String(), Inline: true},
			{Name: "User limit", Value: limitLabel(d.Channel.UserLimit), Inline: true},
			{Name: "Region", Value: channels.RegionLabel(d.Channel.Region), Inline: true},
			{Name: fmt.Sprintf("Members (%d)", len(d.Members)), Value: clip(memberList(d.Members), maxFieldValue)},
		},
	}
}

// ControlPanelComponents are the persistent owner controls.
func ControlPanelComponents(channelID, region string) []discordgo.MessageComponent {
	options := make([]discordgo.SelectMenuOption, 0, len(channels.Regions))
	for _, r := range channels.Regions {
		options = append(options, discordgo.SelectMenuOption{
			Label:   channels.RegionLabel(r),
			Value:   r,
			Default: r == region || (region == "" && r == channels.RegionAuto),
		})
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Public", Style: discordgo.SuccessButton, CustomID: persistentID(ActionPublic, channelID)},
			discordgo.Button{Label: "Lock", Style: discordgo.SecondaryButton, CustomID: persistentID(ActionLock, channelID)},
			discordgo.Button{Label: "Hide", Style: discordgo.SecondaryButton, CustomID: persistentID(ActionHide, channelID)},
			discordgo.Button{Label: "Rename", Style: discordgo.PrimaryButton, CustomID: persistentID(ActionRename, channelID)},
			discordgo.Button{Label: "User limit", Style: discordgo.PrimaryButton, CustomID: persistentID(ActionLimit, channelID)},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Members", Style: discordgo.PrimaryButton, CustomID: persistentID(ActionMembers, channelID)},
			discordgo.Button{Label: "Reset", Style: discordgo.DangerButton, CustomID: persistentID(ActionReset, channelID)},
			discordgo.Button{Label: "Permissions", Style: discordgo.SecondaryButton, CustomID: persistentID(ActionPerms, channelID)},
			discordgo.Button{Label: "Details", Style: discordgo.SecondaryButton, CustomID: persistentID(ActionDetails, channelID)},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    persistentID(ActionRegion, channelID),
				Placeholder: "Voice region",
				Options:     options,
			},
		}},
	}
}

func userSelect(a Action, channelID, placeholder string, issued time.Time) discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{
			MenuType:    discordgo.UserSelectMenu,
			CustomID:    issuedID(a, channelID, issued),
			Placeholder: placeholder,
			MaxValues:   1,
		},
	}}
}

// MemberManagerComponents is the ephemeral member manager opened from the panel.
func MemberManagerComponents(channelID string, issued time.Time) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		userSelect(ActionKick, channelID, "Kick a member", issued),
		userSelect(ActionBan, channelID, "Ban a member", issued),
		userSelect(ActionAllow, channelID, "Allow a member", issued),
		userSelect(ActionUnban, channelID, "Unban a member", issued),
		userSelect(ActionTransfer, channelID, "Transfer ownership", issued),
	}
}

// AdminPanelComponents are the admin controls for one child channel.
func AdminPanelComponents(channelID string, issued time.Time) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Claim", Style: discordgo.PrimaryButton, CustomID: issuedID(ActionAdminClaim, channelID, issued)},
			discordgo.Button{Label: "Kick all", Style: discordgo.SecondaryButton, CustomID: issuedID(ActionAdminKickAll, channelID, issued)},
			discordgo.Button{Label: "Reset", Style: discordgo.SecondaryButton, CustomID: issuedID(ActionAdminReset, channelID, issued)},
			discordgo.Button{Label: "Details", Style: discordgo.SecondaryButton, CustomID: issuedID(ActionAdminDetails, channelID, issued)},
			discordgo.Button{Label: "Delete", Style: discordgo.DangerButton, CustomID: issuedID(ActionAdminDelete, channelID, issued)},
		}},
		userSelect(ActionAdminTransfer, channelID, "Transfer ownership to", issued),
	}
}

func AdminPanelEmbed(d *channels.ChannelDetails) *discordgo.MessageEmbed {
	e := DetailsEmbed(d)
	e.Title = "🛠️ Admin: " + d.Channel.Name
	e.Color = ColorWarning
	return e
}

func DeleteConfirmComponents(channelID string, issued time.Time) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Delete channel", Style: discordgo.DangerButton, CustomID: issuedID(ActionAdminConfirm, channelID, issued)},
			discordgo.Button{Label: "Cancel", Style: discordgo.SecondaryButton, CustomID: issuedID(ActionAdminCancel, channelID, issued)},
		}},
	}
}

// InheritancePrompt is posted into a child channel its owner left.
func InheritancePrompt(child *models.ChildChannel) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "👑 The owner left",
			Description: fmt.Sprintf("%s left the channel. The first member here to press the button becomes the new owner.", mention(child.OwnerID.String())),
			Color:       ColorWarning,
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Claim channel", Style: discordgo.SuccessButton, CustomID: persistentID(ActionClaim, child.ChannelID.String())},
			}},
		},
	}
}

func RenameModal(channelID, current string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: persistentID(ActionRenameSubmit, channelID),
			Title:    "Rename channel",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  renameInputID,
						Label:     "Channel name",
						Style:     discordgo.TextInputShort,
						Value:     current,
						Required:  true,
						MinLength: 1,
						MaxLength: channels.MaxNameLength,
					},
				}},
			},
		},
	}
}

func LimitModal(channelID string, current int) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: persistentID(ActionLimitSubmit, channelID),
			Title:    "User limit",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    limitInputID,
						Label:       fmt.Sprintf("Members allowed (0-%d, 0 is unlimited)", channels.MaxUserLimit),
						Style:       discordgo.TextInputShort,
						Placeholder: "0",
						Value:       strconv.Itoa(current),
						Required:    true,
						MinLength:   1,
						MaxLength:   2,
					},
				}},
			},
		},
	}
}

// PermissionsEmbed lists the explicit overwrites of a channel.
func PermissionsEmbed(guildID string, views []channels.OverwriteView) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, v := range views {
		switch {
		case v.ID == guildID:
			b.WriteString("**@everyone**")
		case v.Role:
			b.WriteString("<@&" + v.ID + ">")
		default:
			b.WriteString(mention(v.ID))
		}
		if len(v.Allow) > 0 {
			b.WriteString("\n✅ " + strings.Join(v.Allow, ", "))
		}
		if len(v.Deny) > 0 {
			b.WriteString("\n🚫 " + strings.Join(v.Deny, ", "))
		}
		b.WriteString("\n\n")
	}
	desc := strings.TrimSpace(b.String())
	if desc == "" {
		desc = "No explicit permissions are set."
	}
	return &discordgo.MessageEmbed{
		Title:       "Channel permissions",
		Description: clip(desc, maxEmbedDesc),
		Color:       ColorInfo,
	}
}

func DetailsEmbed(d *channels.ChannelDetails) *discordgo.MessageEmbed {
	members := append([]string(nil), d.Members...)
	sort.Strings(members)
	return &discordgo.MessageEmbed{
		Title: "ℹ️ " + d.Channel.Name,
		Color: ColorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Owner", Value: mention(d.Child.OwnerID.String()), Inline: true},
			{Name: "Parent", Value: "<#" + d.Child.ParentChannelID.String() + ">", Inline: true},
			{Name: "Created", Value: fmt.Sprintf("<t:%d:R>", d.Child.CreatedAt), Inline: true},
			{Name: "Visibility", Value: d.Visibility.String(), Inline: true},
			{Name: "User limit", Value: limitLabel(d.Channel.UserLimit), Inline: true},
			{Name: "Region", Value: channels.RegionLabel(d.Channel.Region), Inline: true},
			{Name: "Bitrate", Value: fmt.Sprintf("%d kbps", d.Channel.Bitrate/1000), Inline: true},
			{Name: fmt.Sprintf("Members (%d)", len(members)), Value: clip(memberList(members), maxFieldValue)},
		},
	}
}

// DisableComponents returns a copy of components with every button and select disabled.
func DisableComponents(components []discordgo.MessageComponent) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(components))
	for _, c := range components {
		switch v := c.(type) {
		case discordgo.ActionsRow:
			out = append(out, discordgo.ActionsRow{Components: DisableComponents(v.Components)})
		case *discordgo.ActionsRow:
			out = append(out, discordgo.ActionsRow{Components: DisableComponents(v.Components)})
		case discordgo.Button:
			v.Disabled = true
			out = append(out, v)
		case *discordgo.Button:
			b := *v
			b.Disabled = true
			out = append(out, b)
		case discordgo.SelectMenu:
			v.Disabled = true
			out = append(out, v)
		case *discordgo.SelectMenu:
			m := *v
			m.Disabled = true
			out = append(out, m)
		default:
			out = append(out, c)
		}
	}
	return out
}

// modalValue returns the submitted value of the text input id.
func modalValue(data discordgo.ModalSubmitInteractionData, id string) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if input, ok := rc.(*discordgo.TextInput); ok && input.CustomID == id {
				return input.Value
			}
		}
	}
	return ""
}
