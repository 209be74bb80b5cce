package panel

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const idPrefix = "tv"

// Action names the control a component or modal belongs to.
type Action string

// Owner panel
const (
	ActionPublic  Action = "public"
	ActionLock    Action = "lock"
	ActionHide    Action = "hide"
	ActionRename  Action = "rename"
	ActionLimit   Action = "limit"
	ActionMembers Action = "members"
	ActionReset   Action = "reset"
	ActionPerms   Action = "perms"
	ActionDetails Action = "details"
	ActionRegion  Action = "region"
)

// Member manager
const (
	ActionKick     Action = "kick"
	ActionBan      Action = "ban"
	ActionAllow    Action = "allow"
	ActionUnban    Action = "unban"
	ActionTransfer Action = "transfer"
)

// Modals
const (
	ActionRenameSubmit Action = "rename_submit"
	ActionLimitSubmit  Action = "limit_submit"
)

// Inheritance prompt
const ActionClaim Action = "claim"

// Admin panel
const (
	ActionAdminClaim    Action = "a_claim"
	ActionAdminTransfer Action = "a_transfer"
	ActionAdminKickAll  Action = "a_kickall"
	ActionAdminReset    Action = "a_reset"
	ActionAdminDetails  Action = "a_details"
	ActionAdminDelete   Action = "a_delete"
	ActionAdminConfirm  Action = "a_delete_ok"
	ActionAdminCancel   Action = "a_delete_no"
)

// Admin reports whether the action belongs to the admin panel.
func (a Action) Admin() bool {
	return strings.HasPrefix(string(a), "a_")
}

// CustomID is the decoded form of tv:<action>:<channel>[:<issued unix>].
// A zero Issued marks a persistent component that never expires.
type CustomID struct {
	Action    Action
	ChannelID string
	Issued    time.Time
}

func (c CustomID) String() string {
	id := idPrefix + ":" + string(c.Action) + ":" + c.ChannelID
	if !c.Issued.IsZero() {
		id += ":" + strconv.FormatInt(c.Issued.Unix(), 10)
	}
	return id
}

// Expired reports whether a view issued at c.Issued is older than timeout.
func (c CustomID) Expired(now time.Time, timeout time.Duration) bool {
	if c.Issued.IsZero() {
		return false
	}
	return now.Sub(c.Issued) > timeout
}

// IsPanelID reports whether a custom id was issued by this package.
func IsPanelID(id string) bool {
	return strings.HasPrefix(id, idPrefix+":")
}

func ParseCustomID(id string) (CustomID, error) {
	parts := strings.Split(id, ":")
	if len(parts) < 3 || len(parts) > 4 || parts[0] != idPrefix {
		return CustomID{}, fmt.Errorf("malformed custom id %q", id)
	}
	if parts[1] == "" || parts[2] == "" {
		return CustomID{}, fmt.Errorf("malformed custom id %q", id)
	}
	c := CustomID{Action: Action(parts[1]), ChannelID: parts[2]}
	if len(parts) == 4 {
		sec, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return CustomID{}, fmt.Errorf("malformed issue time in custom id %q: %w", id, err)
		}
		c.Issued = time.Unix(sec, 0)
	}
	return c, nil
}

func persistentID(a Action, channelID string) string {
	return CustomID{Action: a, ChannelID: channelID}.String()
}

func issuedID(a Action, channelID string, issued time.Time) string {
	return CustomID{Action: a, ChannelID: channelID, Issued: issued}.String()
}
