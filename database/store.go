package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Haibread/tempvoice/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrInvalidID           = errors.New("invalid id")
)

// Store persists parent channels, their default roles and the child channels spawned from them.
// Ids cross this boundary as the platform's decimal strings and are stored as integers.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func parseID(kind, id string) (models.Snowflake, error) {
	sf, err := models.ParseSnowflake(id)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", kind, id, ErrInvalidID)
	}
	return sf, nil
}

// optionalID parses an optional id; nil or "" yields nil.
func optionalID(kind string, id *string) (*models.Snowflake, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	sf, err := parseID(kind, *id)
	if err != nil {
		return nil, err
	}
	return &sf, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated),
		strings.Contains(err.Error(), "constraint failed"):
		return fmt.Errorf("%v: %w", err, ErrConstraintViolation)
	}
	return err
}

// Parent channels

func (s *Store) AddParentChannel(ctx context.Context, guildID, channelID string, categoryID, template *string) error {
	gid, err := parseID("guild", guildID)
	if err != nil {
		return err
	}
	cid, err := parseID("channel", channelID)
	if err != nil {
		return err
	}
	cat, err := optionalID("category", categoryID)
	if err != nil {
		return err
	}

	parent := models.ParentChannel{
		GuildID:    gid,
		ChannelID:  cid,
		CategoryID: cat,
		Template:   nonEmpty(template),
		CreatedAt:  s.now().Unix(),
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ParentChannel{}).Where("channel_id = ?", cid).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("channel %s is already a parent channel: %w", channelID, ErrConstraintViolation)
		}
		return translate(tx.Omit(clause.Associations).Create(&parent).Error)
	})
}

func (s *Store) GetParentChannel(ctx context.Context, channelID string) (*models.ParentChannel, error) {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return nil, err
	}
	var parent models.ParentChannel
	if err := s.db.WithContext(ctx).Where("channel_id = ?", cid).First(&parent).Error; err != nil {
		return nil, translate(err)
	}
	return &parent, nil
}

func (s *Store) GetParentChannelsByGuild(ctx context.Context, guildID string) ([]models.ParentChannel, error) {
	gid, err := parseID("guild", guildID)
	if err != nil {
		return nil, err
	}
	var parents []models.ParentChannel
	if err := s.db.WithContext(ctx).Where("guild_id = ?", gid).Find(&parents).Error; err != nil {
		return nil, err
	}
	return parents, nil
}

// UpdateParentChannel changes the fields that are non-nil. An empty string clears the field.
func (s *Store) UpdateParentChannel(ctx context.Context, channelID string, categoryID, template *string) error {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if categoryID != nil {
		cat, err := optionalID("category", categoryID)
		if err != nil {
			return err
		}
		updates["category_id"] = cat
	}
	if template != nil {
		updates["template"] = nonEmpty(template)
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.ParentChannel{}).Where("channel_id = ?", cid).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteParentChannel removes the parent with its role associations and child rows.
// Live child channels are left alone.
func (s *Store) DeleteParentChannel(ctx context.Context, channelID string) error {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", cid).Delete(&models.ParentChannelRole{}).Error; err != nil {
			return err
		}
		if err := tx.Where("parent_channel_id = ?", cid).Delete(&models.ChildChannel{}).Error; err != nil {
			return err
		}
		return tx.Where("channel_id = ?", cid).Delete(&models.ParentChannel{}).Error
	})
}

// Default roles

func (s *Store) AddParentChannelRole(ctx context.Context, channelID, roleID string) error {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return err
	}
	rid, err := parseID("role", roleID)
	if err != nil {
		return err
	}
	role := models.ParentChannelRole{ChannelID: cid, RoleID: rid}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(&role).Error
	return translate(err)
}

func (s *Store) RemoveParentChannelRole(ctx context.Context, channelID, roleID string) error {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return err
	}
	rid, err := parseID("role", roleID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("channel_id = ? AND role_id = ?", cid, rid).
		Delete(&models.ParentChannelRole{}).Error
}

func (s *Store) GetParentChannelRoles(ctx context.Context, channelID string) ([]string, error) {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return nil, err
	}
	var ids []models.Snowflake
	if err := s.db.WithContext(ctx).Model(&models.ParentChannelRole{}).
		Where("channel_id = ?", cid).
		Order("role_id").
		Pluck("role_id", &ids).Error; err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(ids))
	for _, id := range ids {
		roles = append(roles, id.String())
	}
	return roles, nil
}

// Child channels

func (s *Store) AddChildChannel(ctx context.Context, guildID, parentChannelID, channelID, ownerID string, controlMessageID *string) (*models.ChildChannel, error) {
	gid, err := parseID("guild", guildID)
	if err != nil {
		return nil, err
	}
	pid, err := parseID("parent channel", parentChannelID)
	if err != nil {
		return nil, err
	}
	cid, err := parseID("channel", channelID)
	if err != nil {
		return nil, err
	}
	oid, err := parseID("owner", ownerID)
	if err != nil {
		return nil, err
	}
	msg, err := optionalID("message", controlMessageID)
	if err != nil {
		return nil, err
	}

	child := &models.ChildChannel{
		GuildID:          gid,
		ParentChannelID:  pid,
		ChannelID:        cid,
		OwnerID:          oid,
		ControlMessageID: msg,
		CreatedAt:        s.now().Unix(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(child).Error; err != nil {
		return nil, translate(err)
	}
	return child, nil
}

func (s *Store) GetChildChannel(ctx context.Context, channelID string) (*models.ChildChannel, error) {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return nil, err
	}
	var child models.ChildChannel
	if err := s.db.WithContext(ctx).Where("channel_id = ?", cid).First(&child).Error; err != nil {
		return nil, translate(err)
	}
	return &child, nil
}

// GetChildChannelWithParent returns the child together with its parent's configuration.
func (s *Store) GetChildChannelWithParent(ctx context.Context, channelID string) (*models.ChildChannel, error) {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return nil, err
	}
	var child models.ChildChannel
	if err := s.db.WithContext(ctx).Preload("Parent").Where("channel_id = ?", cid).First(&child).Error; err != nil {
		return nil, translate(err)
	}
	return &child, nil
}

func (s *Store) GetChildChannelsByParent(ctx context.Context, parentChannelID string) ([]models.ChildChannel, error) {
	pid, err := parseID("parent channel", parentChannelID)
	if err != nil {
		return nil, err
	}
	return s.findChildren(ctx, "parent_channel_id = ?", pid)
}

func (s *Store) GetChildChannelsByOwner(ctx context.Context, guildID, ownerID string) ([]models.ChildChannel, error) {
	gid, err := parseID("guild", guildID)
	if err != nil {
		return nil, err
	}
	oid, err := parseID("owner", ownerID)
	if err != nil {
		return nil, err
	}
	return s.findChildren(ctx, "guild_id = ? AND owner_id = ?", gid, oid)
}

func (s *Store) GetChildChannelsByGuild(ctx context.Context, guildID string) ([]models.ChildChannel, error) {
	gid, err := parseID("guild", guildID)
	if err != nil {
		return nil, err
	}
	return s.findChildren(ctx, "guild_id = ?", gid)
}

func (s *Store) findChildren(ctx context.Context, query string, args ...interface{}) ([]models.ChildChannel, error) {
	var children []models.ChildChannel
	if err := s.db.WithContext(ctx).Where(query, args...).Order("channel_id").Find(&children).Error; err != nil {
		return nil, err
	}
	return children, nil
}

// ChildGuildIDs lists every guild that currently has at least one child row.
func (s *Store) ChildGuildIDs(ctx context.Context) ([]string, error) {
	var ids []models.Snowflake
	if err := s.db.WithContext(ctx).Model(&models.ChildChannel{}).Distinct("guild_id").Pluck("guild_id", &ids).Error; err != nil {
		return nil, err
	}
	guilds := make([]string, 0, len(ids))
	for _, id := range ids {
		guilds = append(guilds, id.String())
	}
	return guilds, nil
}

func (s *Store) UpdateChildChannelOwner(ctx context.Context, channelID, newOwnerID string) error {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return err
	}
	oid, err := parseID("owner", newOwnerID)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.ChildChannel{}).Where("channel_id = ?", cid).Update("owner_id", oid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimChildChannelOwner moves ownership from expectedOwnerID to newOwnerID in a single
// conditional update. It reports false when the row no longer has expectedOwnerID as owner,
// in which case nothing was written.
func (s *Store) ClaimChildChannelOwner(ctx context.Context, channelID, expectedOwnerID, newOwnerID string) (bool, error) {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return false, err
	}
	expected, err := parseID("owner", expectedOwnerID)
	if err != nil {
		return false, err
	}
	oid, err := parseID("owner", newOwnerID)
	if err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Model(&models.ChildChannel{}).
		Where("channel_id = ? AND owner_id = ?", cid, expected).
		Update("owner_id", oid)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) UpdateControlMessage(ctx context.Context, channelID, messageID string) error {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return err
	}
	mid, err := optionalID("message", &messageID)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.ChildChannel{}).Where("channel_id = ?", cid).Update("control_message_id", mid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChildChannel removes the record only; the platform channel is the caller's business.
func (s *Store) DeleteChildChannel(ctx context.Context, channelID string) error {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("channel_id = ?", cid).Delete(&models.ChildChannel{}).Error
}

// Classification

func (s *Store) IsParentChannel(ctx context.Context, channelID string) (bool, error) {
	return s.exists(ctx, &models.ParentChannel{}, channelID)
}

func (s *Store) IsChildChannel(ctx context.Context, channelID string) (bool, error) {
	return s.exists(ctx, &models.ChildChannel{}, channelID)
}

func (s *Store) exists(ctx context.Context, model interface{}, channelID string) (bool, error) {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return false, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("channel_id = ?", cid).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// LookupChannel returns whichever record describes channelID. Both are nil for unmanaged channels.
func (s *Store) LookupChannel(ctx context.Context, channelID string) (*models.ParentChannel, *models.ChildChannel, error) {
	cid, err := parseID("channel", channelID)
	if err != nil {
		return nil, nil, err
	}

	var parent *models.ParentChannel
	var child *models.ChildChannel
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.ChildChannel
		res := tx.Where("channel_id = ?", cid).Limit(1).Find(&c)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			child = &c
			return nil
		}

		var p models.ParentChannel
		res = tx.Where("channel_id = ?", cid).Limit(1).Find(&p)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			parent = &p
		}
		return nil
	})
	return parent, child, err
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
