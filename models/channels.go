package models

import "strconv"

// Snowflake is a platform identifier stored as an integer column.
type Snowflake int64

func (s Snowflake) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// ParseSnowflake parses a decimal platform id.
func ParseSnowflake(id string) (Snowflake, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, err
	}
	return Snowflake(n), nil
}

// ParentChannel is a voice channel that spawns a child channel for every member joining it.
type ParentChannel struct {
	ChannelID  Snowflake  `gorm:"primaryKey;autoIncrement:false" json:"channel_id"`
	GuildID    Snowflake  `gorm:"not null;index:idx_parent_guild" json:"guild_id"`
	CategoryID *Snowflake `json:"category_id"`
	Template   *string    `json:"template"`
	CreatedAt  int64      `gorm:"autoCreateTime" json:"created_at"`

	Roles []ParentChannelRole `gorm:"foreignKey:ChannelID;references:ChannelID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ParentChannel) TableName() string { return "parent_channels" }

// TemplateString returns the name template, or "" when none is set.
func (p *ParentChannel) TemplateString() string {
	if p.Template == nil {
		return ""
	}
	return *p.Template
}

// ParentChannelRole pre-authorizes a role on every child spawned from ChannelID.
type ParentChannelRole struct {
	ChannelID Snowflake `gorm:"primaryKey;autoIncrement:false;index:idx_parent_roles_channel" json:"channel_id"`
	RoleID    Snowflake `gorm:"primaryKey;autoIncrement:false" json:"role_id"`
}

func (ParentChannelRole) TableName() string { return "parent_channel_roles" }

// ChildChannel is an ephemeral voice channel owned by one member.
type ChildChannel struct {
	ChannelID        Snowflake     `gorm:"primaryKey;autoIncrement:false" json:"channel_id"`
	GuildID          Snowflake     `gorm:"not null;index:idx_child_guild" json:"guild_id"`
	ParentChannelID  Snowflake     `gorm:"not null;index:idx_child_parent" json:"parent_channel_id"`
	OwnerID          Snowflake     `gorm:"not null;index:idx_child_owner" json:"owner_id"`
	ControlMessageID *Snowflake    `json:"control_message_id"`
	CreatedAt        int64         `gorm:"autoCreateTime" json:"created_at"`
	Parent           ParentChannel `gorm:"foreignKey:ParentChannelID;references:ChannelID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ChildChannel) TableName() string { return "child_channels" }

// ControlMessage returns the panel message id, or "" when none was recorded.
func (c *ChildChannel) ControlMessage() string {
	if c.ControlMessageID == nil {
		return ""
	}
	return c.ControlMessageID.String()
}
