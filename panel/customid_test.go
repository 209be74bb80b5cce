package panel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomIDRoundTrip(t *testing.T) {
	t.Parallel()

	issued := time.Unix(1700000000, 0)
	tests := []struct {
		name string
		id   CustomID
		want string
	}{
		{name: "persistent", id: CustomID{Action: ActionLock, ChannelID: "123"}, want: "tv:lock:123"},
		{name: "issued", id: CustomID{Action: ActionAdminDelete, ChannelID: "123", Issued: issued}, want: "tv:a_delete:123:1700000000"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.id.String())
			assert.True(t, IsPanelID(tt.want))

			parsed, err := ParseCustomID(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.id.Action, parsed.Action)
			assert.Equal(t, tt.id.ChannelID, parsed.ChannelID)
			assert.True(t, tt.id.Issued.Equal(parsed.Issued))
		})
	}
}

func TestParseCustomIDRejectsForeignIDs(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "tv", "tv:lock", "tv::1", "tv:lock:", "bet:lock:1", "tv:lock:1:soon", "tv:a:b:c:d"} {
		_, err := ParseCustomID(raw)
		assert.Error(t, err, raw)
	}
	assert.False(t, IsPanelID("lottery_buy_1"))
}

func TestCustomIDExpired(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000600, 0)
	assert.False(t, CustomID{}.Expired(now, time.Minute), "persistent ids never expire")
	assert.False(t, CustomID{Issued: now.Add(-30 * time.Second)}.Expired(now, time.Minute))
	assert.True(t, CustomID{Issued: now.Add(-2 * time.Minute)}.Expired(now, time.Minute))
}

func TestActionAdmin(t *testing.T) {
	t.Parallel()

	assert.True(t, ActionAdminConfirm.Admin())
	assert.False(t, ActionAllow.Admin())
}
