package channels

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibility(t *testing.T) {
	t.Parallel()

	for _, v := range []Visibility{Public, Locked, Hidden} {
		v := v
		t.Run(v.String(), func(t *testing.T) {
			t.Parallel()
			ch := &VoiceChannel{GuildID: "10", Overwrites: []*discordgo.PermissionOverwrite{
				{ID: "10", Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionVoiceSpeak},
			}}
			ow := everyoneOverwrite(ch, v)
			ch.Overwrites = []*discordgo.PermissionOverwrite{&ow}

			assert.Equal(t, v, VisibilityOf(ch))
			assert.NotZero(t, ow.Allow&discordgo.PermissionVoiceSpeak, "unrelated bits are kept")

			parsed, err := ParseVisibility(v.String())
			require.NoError(t, err)
			assert.Equal(t, v, parsed)
		})
	}

	assert.Equal(t, Public, VisibilityOf(&VoiceChannel{GuildID: "10"}))
}

func TestChildOverwrites(t *testing.T) {
	t.Parallel()

	parent := []*discordgo.PermissionOverwrite{
		{ID: "10", Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionVoiceConnect},
		{ID: "owner", Type: discordgo.PermissionOverwriteTypeMember, Deny: discordgo.PermissionVoiceConnect},
	}
	ows := childOverwrites(parent, "owner", "bot", []string{"role"})

	byID := map[string]*discordgo.PermissionOverwrite{}
	for _, ow := range ows {
		byID[ow.ID] = ow
	}
	require.Len(t, byID, 4)

	assert.Equal(t, int64(discordgo.PermissionVoiceConnect), byID["10"].Deny)
	assert.Equal(t, int64(OwnerAllow), byID["owner"].Allow&OwnerAllow)
	assert.Zero(t, byID["owner"].Deny&discordgo.PermissionVoiceConnect, "owner grant lifts the parent deny")
	assert.Equal(t, int64(BotAllow), byID["bot"].Allow)
	assert.Equal(t, int64(AccessAllow), byID["role"].Allow)
	assert.Equal(t, discordgo.PermissionOverwriteTypeRole, byID["role"].Type)

	// the parent's slice is not modified
	assert.Zero(t, parent[1].Allow)
}

func TestValidateName(t *testing.T) {
	t.Parallel()

	name, err := ValidateName("  Squad  ")
	require.NoError(t, err)
	assert.Equal(t, "Squad", name)

	_, err = ValidateName("   ")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	long := make([]rune, MaxNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = ValidateName(string(long))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ValidateName(string(long[:MaxNameLength]))
	assert.NoError(t, err)
}

func TestParseUserLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "0", want: 0},
		{raw: "99", want: 99},
		{raw: " 5 ", want: 5},
		{raw: "-1", wantErr: true},
		{raw: "100", wantErr: true},
		{raw: "ten", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseUserLimit(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRegion(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "auto", "AUTO"} {
		got, err := ParseRegion(raw)
		require.NoError(t, err)
		assert.Equal(t, "", got)
	}
	got, err := ParseRegion("japan")
	require.NoError(t, err)
	assert.Equal(t, "japan", got)

	_, err = ParseRegion("moon")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChannelPatchBody(t *testing.T) {
	t.Parallel()

	auto := ""
	limit := 0
	body := ChannelPatch{Region: &auto, UserLimit: &limit}.Body()
	assert.Contains(t, body, "rtc_region")
	assert.Nil(t, body["rtc_region"])
	assert.Equal(t, 0, body["user_limit"])
	assert.NotContains(t, body, "name")

	assert.Empty(t, ChannelPatch{}.Body())
}

func TestDescribeOverwrites(t *testing.T) {
	t.Parallel()

	ch := &VoiceChannel{GuildID: "10", Overwrites: []*discordgo.PermissionOverwrite{
		{ID: "u", Type: discordgo.PermissionOverwriteTypeMember, Deny: AccessAllow},
		{ID: "10", Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel},
	}}
	views := DescribeOverwrites(ch)
	require.Len(t, views, 2)
	assert.Equal(t, "10", views[0].ID)
	assert.True(t, views[0].Role)
	assert.Equal(t, []string{"view"}, views[0].Allow)
	assert.Equal(t, []string{"view", "connect"}, views[1].Deny)
}
