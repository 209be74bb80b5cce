package channels

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFormatTemplate(t *testing.T) {
	t.Parallel()

	alice := MemberInfo{ID: "1", Username: "Alice", DisplayName: "Ally"}

	tests := []struct {
		name     string
		template string
		member   MemberInfo
		extra    map[string]string
		want     string
	}{
		{name: "user", template: "{user}的窩", member: alice, want: "Alice的窩"},
		{name: "display name", template: "{user_displayname}'s Room", member: alice, want: "Ally's Room"},
		{name: "unknown placeholder kept", template: "{unknown}", member: alice, want: "{unknown}"},
		{name: "empty uses default", template: "", member: alice, want: "Ally 的頻道"},
		{name: "blank uses default", template: "   ", member: alice, want: "Ally 的頻道"},
		{name: "display name falls back", template: "{user_displayname}", member: MemberInfo{Username: "bob"}, want: "bob"},
		{name: "extra vars", template: "{icao} #{number} {game}", member: alice,
			extra: map[string]string{"icao": "Alfa", "number": "1", "game": "Tetris"}, want: "Alfa #1 Tetris"},
		{name: "extra overrides member", template: "{user}", member: alice, extra: map[string]string{"user": "x"}, want: "x"},
		{name: "braces without identifier", template: "{ } {1a} {}", member: alice, want: "{ } {1a} {}"},
		{name: "repeated", template: "{user}-{user}", member: alice, want: "Alice-Alice"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FormatTemplate(tt.template, tt.member, tt.extra))
		})
	}
}

func TestFormatTemplate_Truncates(t *testing.T) {
	t.Parallel()

	member := MemberInfo{Username: strings.Repeat("名", 150)}
	got := FormatTemplate("{user}", member, nil)

	assert.Equal(t, MaxNameLength, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, truncationMarker))

	exact := MemberInfo{Username: strings.Repeat("a", MaxNameLength)}
	assert.Equal(t, exact.Username, FormatTemplate("{user}", exact, nil))
}

func TestFormatTemplate_Deterministic(t *testing.T) {
	t.Parallel()
	member := MemberInfo{Username: "a", DisplayName: "b"}
	first := FormatTemplate("{user}{user_displayname}{x}", member, map[string]string{"y": "z"})
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, FormatTemplate("{user}{user_displayname}{x}", member, map[string]string{"y": "z"}))
	}
}

func TestUnknownVariables(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"team", "size"}, UnknownVariables("{user} {team} {icao} {team} {size}"))
	assert.Empty(t, UnknownVariables("{user_displayname} #{number}"))
}

func TestRankVariables(t *testing.T) {
	t.Parallel()
	assert.Equal(t, map[string]string{"number": "1", "icao": "Alfa"}, rankVariables(1))
	assert.Equal(t, "Zulu", rankVariables(26)[VarICAO])
	assert.Equal(t, "Alfa", rankVariables(27)[VarICAO])
	assert.Equal(t, "3", rankVariables(3)[VarNumber])
}
