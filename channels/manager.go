package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/Haibread/tempvoice/database"
	"github.com/Haibread/tempvoice/metrics"
	"github.com/Haibread/tempvoice/models"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Store is the persistence the manager needs; *database.Store implements it.
type Store interface {
	GetParentChannel(ctx context.Context, channelID string) (*models.ParentChannel, error)
	GetParentChannelsByGuild(ctx context.Context, guildID string) ([]models.ParentChannel, error)
	GetParentChannelRoles(ctx context.Context, channelID string) ([]string, error)
	DeleteParentChannel(ctx context.Context, channelID string) error

	AddChildChannel(ctx context.Context, guildID, parentChannelID, channelID, ownerID string, controlMessageID *string) (*models.ChildChannel, error)
	GetChildChannel(ctx context.Context, channelID string) (*models.ChildChannel, error)
	GetChildChannelWithParent(ctx context.Context, channelID string) (*models.ChildChannel, error)
	GetChildChannelsByParent(ctx context.Context, parentChannelID string) ([]models.ChildChannel, error)
	GetChildChannelsByGuild(ctx context.Context, guildID string) ([]models.ChildChannel, error)
	ChildGuildIDs(ctx context.Context) ([]string, error)
	ClaimChildChannelOwner(ctx context.Context, channelID, expectedOwnerID, newOwnerID string) (bool, error)
	UpdateControlMessage(ctx context.Context, channelID, messageID string) error
	DeleteChildChannel(ctx context.Context, channelID string) error

	LookupChannel(ctx context.Context, channelID string) (*models.ParentChannel, *models.ChildChannel, error)
}

// Notifier posts and maintains the messages attached to a child channel.
type Notifier interface {
	// PostControlPanel returns the id of the posted panel message.
	PostControlPanel(ctx context.Context, child *models.ChildChannel) (string, error)
	RefreshControlPanel(ctx context.Context, child *models.ChildChannel) error
	// PostInheritancePrompt returns the id of the posted prompt message.
	PostInheritancePrompt(ctx context.Context, child *models.ChildChannel) (string, error)
	RetireInheritancePrompt(ctx context.Context, channelID, messageID string) error
}

// Options are the config values the manager reads.
type Options struct {
	DefaultTemplate string
	PromptCacheSize int
}

// Manager keeps child channels and their store rows in step with voice activity.
type Manager struct {
	store    Store
	platform Platform
	notifier Notifier
	log      *zap.SugaredLogger

	defaultTemplate string
	// prompts maps a child channel id to its open inheritance prompt message id.
	prompts *lru.Cache[string, string]
}

func NewManager(opts Options, store Store, platform Platform, notifier Notifier, log *zap.SugaredLogger) (*Manager, error) {
	size := opts.PromptCacheSize
	if size <= 0 {
		size = 1024
	}
	prompts, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt cache: %w", err)
	}
	tpl := opts.DefaultTemplate
	if tpl == "" {
		tpl = DefaultTemplate
	}
	return &Manager{
		store:           store,
		platform:        platform,
		notifier:        notifier,
		log:             log,
		defaultTemplate: tpl,
		prompts:         prompts,
	}, nil
}

// SetNotifier replaces the notifier. The panel renderer needs the manager, so
// main wires it after construction.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

func (m *Manager) Store() Store {
	return m.store
}

func (m *Manager) Platform() Platform {
	return m.platform
}

// State is the lifecycle state of a channel.
type State int

const (
	Unmanaged State = iota
	Parent
	ChildOccupied
	ChildEmpty
)

func (s State) String() string {
	switch s {
	case Parent:
		return "parent"
	case ChildOccupied:
		return "child-occupied"
	case ChildEmpty:
		return "child-empty"
	default:
		return "unmanaged"
	}
}

// Classification is the result of one store lookup for a channel.
type Classification struct {
	State   State
	Parent  *models.ParentChannel
	Child   *models.ChildChannel
	Members []string
}

// Classify looks the channel up once and counts its live members when it is a child.
func (m *Manager) Classify(ctx context.Context, guildID, channelID string) (Classification, error) {
	parent, child, err := m.store.LookupChannel(ctx, channelID)
	if errors.Is(err, database.ErrNotFound) {
		return Classification{State: Unmanaged}, nil
	}
	if err != nil {
		return Classification{}, fmt.Errorf("failed to classify channel %s: %w", channelID, err)
	}

	switch {
	case child != nil && child.GuildID.String() == guildID:
		c := Classification{Child: child, Members: m.platform.VoiceMembers(guildID, channelID)}
		c.State = ChildOccupied
		if len(c.Members) == 0 {
			c.State = ChildEmpty
		}
		return c, nil
	case parent != nil && parent.GuildID.String() == guildID:
		return Classification{State: Parent, Parent: parent}, nil
	}
	return Classification{State: Unmanaged}, nil
}

// VoiceTransition is one member moving between voice channels. Empty ids mean
// not connected.
type VoiceTransition struct {
	GuildID string
	Member  MemberInfo
	Before  string
	After   string
}

// HandleVoiceTransition runs the departure side first, then the join side.
func (m *Manager) HandleVoiceTransition(ctx context.Context, t VoiceTransition) error {
	if t.Before == t.After {
		return nil
	}
	var errs []error
	if t.Before != "" {
		if err := m.handleDeparture(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	if t.After != "" {
		if err := m.handleJoin(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) handleDeparture(ctx context.Context, t VoiceTransition) error {
	c, err := m.Classify(ctx, t.GuildID, t.Before)
	if err != nil {
		return err
	}
	switch c.State {
	case ChildEmpty:
		return m.reap(ctx, c.Child, "empty", false)
	case ChildOccupied:
		if c.Child.OwnerID.String() == t.Member.ID {
			return m.OfferInheritance(ctx, c.Child)
		}
	}
	return nil
}

func (m *Manager) handleJoin(ctx context.Context, t VoiceTransition) error {
	c, err := m.Classify(ctx, t.GuildID, t.After)
	if err != nil {
		return err
	}
	switch c.State {
	case Parent:
		if t.Member.Bot {
			return nil
		}
		_, err := m.spawn(ctx, c.Parent, t.Member)
		return err
	case ChildOccupied, ChildEmpty:
		if c.Child.OwnerID.String() == t.Member.ID {
			m.retirePrompt(ctx, t.After)
		}
	}
	return nil
}

// SpawnChild creates a child of parentChannelID for member. A parent that is no
// longer registered is not an error; nil is returned.
func (m *Manager) SpawnChild(ctx context.Context, parentChannelID string, member MemberInfo) (*models.ChildChannel, error) {
	parent, err := m.store.GetParentChannel(ctx, parentChannelID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parent channel %s: %w", parentChannelID, err)
	}
	return m.spawn(ctx, parent, member)
}

func (m *Manager) spawn(ctx context.Context, parent *models.ParentChannel, member MemberInfo) (*models.ChildChannel, error) {
	guildID, parentID := parent.GuildID.String(), parent.ChannelID.String()
	log := m.log.With("guild", guildID, "parent", parentID, "member", member.ID)

	live, err := m.platform.Channel(ctx, parentID)
	if errors.Is(err, ErrChannelGone) {
		log.Infow("Parent channel no longer exists, not spawning")
		return nil, nil
	}
	if err != nil {
		metrics.SpawnFailures.WithLabelValues("lookup").Inc()
		return nil, fmt.Errorf("failed to fetch parent channel %s: %w", parentID, err)
	}
	roles, err := m.store.GetParentChannelRoles(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get default roles of %s: %w", parentID, err)
	}
	siblings, err := m.store.GetChildChannelsByParent(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count children of %s: %w", parentID, err)
	}

	template := parent.TemplateString()
	if template == "" {
		template = m.defaultTemplate
	}
	vars := rankVariables(len(siblings) + 1)
	if usesVariable(template, VarGame) {
		vars[VarGame] = m.platform.Activity(guildID, member.ID)
	}
	name := FormatTemplate(template, member, vars)

	category := live.ParentID
	if parent.CategoryID != nil {
		category = parent.CategoryID.String()
	}

	created, err := m.platform.CreateVoiceChannel(ctx, guildID, VoiceChannelSpec{
		Name:             name,
		ParentID:         category,
		Bitrate:          live.Bitrate,
		UserLimit:        live.UserLimit,
		Region:           live.Region,
		VideoQualityMode: live.VideoQualityMode,
		Overwrites:       childOverwrites(live.Overwrites, member.ID, m.platform.BotUserID(), roles),
	})
	if err != nil {
		metrics.SpawnFailures.WithLabelValues("create").Inc()
		return nil, fmt.Errorf("failed to create child channel: %w", err)
	}
	log = log.With("channel", created.ID)

	child, err := m.store.AddChildChannel(ctx, guildID, parentID, created.ID, member.ID, nil)
	if err != nil {
		// The platform channel now exists without a row. force_cleanup does not see it.
		metrics.SpawnFailures.WithLabelValues("persist").Inc()
		log.Errorw("Child channel created but not recorded", "error", err)
		return nil, fmt.Errorf("failed to record child channel %s: %w", created.ID, err)
	}
	metrics.ChildrenSpawned.Inc()
	metrics.ActiveChildren.Inc()
	log.Infow("Child channel created", "name", name)

	if m.platform.VoiceChannelOf(guildID, member.ID) != parentID {
		log.Infow("Member left the parent before the child was ready")
		return child, m.reap(ctx, child, "abandoned", false)
	}
	if err := m.platform.MoveMember(ctx, guildID, member.ID, &created.ID); err != nil {
		log.Warnw("Failed to move member into child channel", "error", err)
	}

	msgID, err := m.notifier.PostControlPanel(ctx, child)
	if err != nil {
		log.Warnw("Failed to post control panel", "error", err)
		return child, nil
	}
	if msgID != "" {
		if err := m.store.UpdateControlMessage(ctx, created.ID, msgID); err != nil {
			log.Warnw("Failed to record control panel message", "error", err)
			return child, nil
		}
		if id, err := models.ParseSnowflake(msgID); err == nil {
			child.ControlMessageID = &id
		}
	}
	return child, nil
}

// Reap deletes channelID if it is a child with no members left.
func (m *Manager) Reap(ctx context.Context, channelID string) error {
	child, err := m.store.GetChildChannel(ctx, channelID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get child channel %s: %w", channelID, err)
	}
	return m.reap(ctx, child, "empty", false)
}

// reap removes the row, then the platform channel. Unless force is set the live
// member count is re-read first and a channel that filled up again is kept.
func (m *Manager) reap(ctx context.Context, child *models.ChildChannel, reason string, force bool) error {
	guildID, channelID := child.GuildID.String(), child.ChannelID.String()
	log := m.log.With("guild", guildID, "channel", channelID, "reason", reason)

	if !force {
		if members := m.platform.VoiceMembers(guildID, channelID); len(members) > 0 {
			log.Debugw("Child channel is no longer empty, keeping it", "members", len(members))
			return nil
		}
	}
	m.prompts.Remove(channelID)

	var errs []error
	if err := m.store.DeleteChildChannel(ctx, channelID); err != nil {
		log.Errorw("Failed to delete child channel row", "error", err)
		errs = append(errs, fmt.Errorf("failed to delete child row %s: %w", channelID, err))
	} else {
		metrics.ActiveChildren.Dec()
	}
	if err := m.platform.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, ErrChannelGone) {
		log.Errorw("Failed to delete child channel", "error", err)
		errs = append(errs, fmt.Errorf("failed to delete child channel %s: %w", channelID, err))
	}
	metrics.ChildrenReaped.WithLabelValues(reason).Inc()
	log.Infow("Child channel deleted")
	return errors.Join(errs...)
}

// guard recovers a panic at a handler boundary.
func (m *Manager) guard(where string, keysAndValues ...interface{}) {
	if r := recover(); r != nil {
		m.log.Errorw("Recovered from panic", append(keysAndValues, "in", where, "panic", r)...)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
