// Package platformtest provides in-memory fakes of the chat platform for tests.
package platformtest

import (
	"context"
	"strconv"
	"sync"

	"github.com/Haibread/tempvoice/channels"
	"github.com/bwmarrin/discordgo"
)

// AllPermissions is the default bot permission set of a Fake.
const AllPermissions int64 = discordgo.PermissionAll

// Move records one MoveMember call. Target "" is a disconnect.
type Move struct {
	GuildID string
	UserID  string
	Target  string
}

// Fake implements channels.Platform and channels.Messenger.
type Fake struct {
	mu sync.Mutex

	botID    string
	nextID   int64
	botPerms int64

	channels   map[string]*channels.VoiceChannel
	voice      map[string]map[string]string // guild -> user -> channel
	members    map[string]map[string]channels.MemberInfo
	activities map[string]string
	messages   map[string]*discordgo.Message
	failures   map[string]error

	moves   []Move
	created []channels.VoiceChannelSpec
	// beforeMove runs, unlocked, at the start of MoveMember.
	beforeMove func()
}

var _ channels.Platform = (*Fake)(nil)
var _ channels.Messenger = (*Fake)(nil)

func NewFake(botID string) *Fake {
	return &Fake{
		botID:      botID,
		nextID:     800000,
		botPerms:   AllPermissions,
		channels:   map[string]*channels.VoiceChannel{},
		voice:      map[string]map[string]string{},
		members:    map[string]map[string]channels.MemberInfo{},
		activities: map[string]string{},
		messages:   map[string]*discordgo.Message{},
		failures:   map[string]error{},
	}
}

func (f *Fake) newID() string {
	f.nextID++
	return strconv.FormatInt(f.nextID, 10)
}

func copyChannel(c *channels.VoiceChannel) *channels.VoiceChannel {
	cp := *c
	cp.Overwrites = make([]*discordgo.PermissionOverwrite, 0, len(c.Overwrites))
	for _, ow := range c.Overwrites {
		o := *ow
		cp.Overwrites = append(cp.Overwrites, &o)
	}
	return &cp
}

// Test setup

func (f *Fake) AddChannel(ch channels.VoiceChannel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = copyChannel(&ch)
}

func (f *Fake) AddMember(guildID string, m channels.MemberInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[guildID] == nil {
		f.members[guildID] = map[string]channels.MemberInfo{}
	}
	f.members[guildID][m.ID] = m
}

// Connect puts userID in channelID; "" disconnects.
func (f *Fake) Connect(guildID, userID, channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connect(guildID, userID, channelID)
}

func (f *Fake) connect(guildID, userID, channelID string) {
	if f.voice[guildID] == nil {
		f.voice[guildID] = map[string]string{}
	}
	if channelID == "" {
		delete(f.voice[guildID], userID)
		return
	}
	f.voice[guildID][userID] = channelID
}

func (f *Fake) SetActivity(userID, game string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities[userID] = game
}

func (f *Fake) SetBotPermissions(perms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.botPerms = perms
}

// FailOn makes op return err until cleared with a nil err. Ops are the method names.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// BeforeMove installs a hook run at the start of every MoveMember call.
func (f *Fake) BeforeMove(hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeMove = hook
}

// Inspection

// Get returns a copy of the channel.
func (f *Fake) Get(channelID string) (*channels.VoiceChannel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, false
	}
	return copyChannel(ch), true
}

func (f *Fake) ChannelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

func (f *Fake) Moves() []Move {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Move(nil), f.moves...)
}

func (f *Fake) Created() []channels.VoiceChannelSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channels.VoiceChannelSpec(nil), f.created...)
}

// Messages lists the messages in channelID.
func (f *Fake) Messages(channelID string) []*discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.Message
	for _, m := range f.messages {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

func (f *Fake) Message(messageID string) (*discordgo.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	return m, ok
}

// Platform

func (f *Fake) BotUserID() string {
	return f.botID
}

func (f *Fake) Channel(_ context.Context, channelID string) (*channels.VoiceChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["Channel"]; err != nil {
		return nil, err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, channels.ErrChannelGone
	}
	return copyChannel(ch), nil
}

func (f *Fake) CreateVoiceChannel(_ context.Context, guildID string, spec channels.VoiceChannelSpec) (*channels.VoiceChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["CreateVoiceChannel"]; err != nil {
		return nil, err
	}
	ch := &channels.VoiceChannel{
		ID:               f.newID(),
		GuildID:          guildID,
		ParentID:         spec.ParentID,
		Name:             spec.Name,
		Type:             discordgo.ChannelTypeGuildVoice,
		Bitrate:          spec.Bitrate,
		UserLimit:        spec.UserLimit,
		Region:           spec.Region,
		VideoQualityMode: spec.VideoQualityMode,
		Overwrites:       spec.Overwrites,
	}
	f.channels[ch.ID] = copyChannel(ch)
	f.created = append(f.created, spec)
	return copyChannel(ch), nil
}

func (f *Fake) EditVoiceChannel(_ context.Context, channelID string, patch channels.ChannelPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["EditVoiceChannel"]; err != nil {
		return err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return channels.ErrChannelGone
	}
	if patch.Name != nil {
		ch.Name = *patch.Name
	}
	if patch.UserLimit != nil {
		ch.UserLimit = *patch.UserLimit
	}
	if patch.Region != nil {
		ch.Region = *patch.Region
	}
	return nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["DeleteChannel"]; err != nil {
		return err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return channels.ErrChannelGone
	}
	delete(f.channels, channelID)
	for user, c := range f.voice[ch.GuildID] {
		if c == channelID {
			delete(f.voice[ch.GuildID], user)
		}
	}
	for id, m := range f.messages {
		if m.ChannelID == channelID {
			delete(f.messages, id)
		}
	}
	return nil
}

func (f *Fake) SetOverwrite(_ context.Context, channelID string, ow discordgo.PermissionOverwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["SetOverwrite"]; err != nil {
		return err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return channels.ErrChannelGone
	}
	for _, cur := range ch.Overwrites {
		if cur.ID == ow.ID {
			*cur = ow
			return nil
		}
	}
	ch.Overwrites = append(ch.Overwrites, &ow)
	return nil
}

func (f *Fake) DeleteOverwrite(_ context.Context, channelID, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["DeleteOverwrite"]; err != nil {
		return err
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return channels.ErrChannelGone
	}
	kept := ch.Overwrites[:0]
	for _, ow := range ch.Overwrites {
		if ow.ID != targetID {
			kept = append(kept, ow)
		}
	}
	ch.Overwrites = kept
	return nil
}

func (f *Fake) BotPermissions(channelID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return 0, channels.ErrChannelGone
	}
	return f.botPerms, nil
}

func (f *Fake) VoiceMembers(guildID, channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var users []string
	for user, c := range f.voice[guildID] {
		if c == channelID {
			users = append(users, user)
		}
	}
	return users
}

func (f *Fake) VoiceChannelOf(guildID, userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voice[guildID][userID]
}

func (f *Fake) MoveMember(_ context.Context, guildID, userID string, channelID *string) error {
	f.mu.Lock()
	hook := f.beforeMove
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["MoveMember"]; err != nil {
		return err
	}
	target := ""
	if channelID != nil {
		if _, ok := f.channels[*channelID]; !ok {
			return channels.ErrChannelGone
		}
		target = *channelID
	}
	f.connect(guildID, userID, target)
	f.moves = append(f.moves, Move{GuildID: guildID, UserID: userID, Target: target})
	return nil
}

func (f *Fake) Member(_ context.Context, guildID, userID string) (channels.MemberInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[guildID][userID]
	if !ok {
		return channels.MemberInfo{}, channels.ErrNotPresent
	}
	return m, nil
}

func (f *Fake) Activity(_, userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activities[userID]
}

// Messenger

func (f *Fake) SendMessage(_ context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["SendMessage"]; err != nil {
		return nil, err
	}
	if _, ok := f.channels[channelID]; !ok {
		return nil, channels.ErrChannelGone
	}
	m := &discordgo.Message{
		ID:         f.newID(),
		ChannelID:  channelID,
		Content:    msg.Content,
		Embeds:     msg.Embeds,
		Components: msg.Components,
	}
	f.messages[m.ID] = m
	return m, nil
}

func (f *Fake) EditMessage(_ context.Context, edit *discordgo.MessageEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures["EditMessage"]; err != nil {
		return err
	}
	m, ok := f.messages[edit.ID]
	if !ok || m.ChannelID != edit.Channel {
		return channels.ErrMessageGone
	}
	if edit.Content != nil {
		m.Content = *edit.Content
	}
	if edit.Embeds != nil {
		m.Embeds = *edit.Embeds
	}
	if edit.Components != nil {
		m.Components = *edit.Components
	}
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok || m.ChannelID != channelID {
		return channels.ErrMessageGone
	}
	delete(f.messages, messageID)
	return nil
}
