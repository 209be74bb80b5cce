package database

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Haibread/tempvoice/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	guildA  = "100000000000000001"
	guildB  = "100000000000000002"
	parentA = "200000000000000001"
	parentB = "200000000000000002"
	childA  = "300000000000000001"
	childB  = "300000000000000002"
	ownerA  = "400000000000000001"
	ownerB  = "400000000000000002"
	roleA   = "500000000000000001"
)

func strPtr(s string) *string { return &s }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "voice.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	sqldb, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	store := NewStore(db)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }
	return store
}

func TestStore_ParentChannelCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddParentChannel(ctx, guildA, parentA, nil, strPtr("{user}的窩")))

	parent, err := store.GetParentChannel(ctx, parentA)
	require.NoError(t, err)
	assert.Equal(t, parentA, parent.ChannelID.String())
	assert.Equal(t, guildA, parent.GuildID.String())
	assert.Nil(t, parent.CategoryID)
	assert.Equal(t, "{user}的窩", parent.TemplateString())
	assert.Equal(t, int64(1700000000), parent.CreatedAt)

	t.Run("duplicate is a constraint violation", func(t *testing.T) {
		err := store.AddParentChannel(ctx, guildA, parentA, nil, nil)
		assert.ErrorIs(t, err, ErrConstraintViolation)
	})

	t.Run("partial update", func(t *testing.T) {
		require.NoError(t, store.UpdateParentChannel(ctx, parentA, strPtr("600000000000000001"), nil))
		parent, err := store.GetParentChannel(ctx, parentA)
		require.NoError(t, err)
		require.NotNil(t, parent.CategoryID)
		assert.Equal(t, "600000000000000001", parent.CategoryID.String())
		assert.Equal(t, "{user}的窩", parent.TemplateString())
	})

	t.Run("update with no fields is a no-op", func(t *testing.T) {
		assert.NoError(t, store.UpdateParentChannel(ctx, parentA, nil, nil))
		assert.NoError(t, store.UpdateParentChannel(ctx, "999", nil, nil))
	})

	t.Run("empty template clears it", func(t *testing.T) {
		require.NoError(t, store.UpdateParentChannel(ctx, parentA, nil, strPtr("")))
		parent, err := store.GetParentChannel(ctx, parentA)
		require.NoError(t, err)
		assert.Nil(t, parent.Template)
	})

	t.Run("update unknown parent", func(t *testing.T) {
		err := store.UpdateParentChannel(ctx, parentB, nil, strPtr("x"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing parent", func(t *testing.T) {
		_, err := store.GetParentChannel(ctx, parentB)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := store.GetParentChannel(ctx, "not-a-snowflake")
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestOpen_ForeignKeysPointAtParents(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	ddl := func(table string) string {
		var sql string
		require.NoError(t, store.db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&sql).Error)
		require.NotEmpty(t, sql, table)
		return strings.NewReplacer("`", "", `"`, "").Replace(sql)
	}
	assert.NotContains(t, ddl("parent_channels"), "REFERENCES", "parent channels reference nothing")
	assert.Contains(t, ddl("parent_channel_roles"), "REFERENCES parent_channels(channel_id) ON DELETE CASCADE")
	assert.Contains(t, ddl("child_channels"), "REFERENCES parent_channels(channel_id) ON DELETE CASCADE")

	var unique int64
	require.NoError(t, store.db.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = 'parent_channels' AND sql LIKE 'CREATE UNIQUE INDEX%'").Scan(&unique).Error)
	assert.Zero(t, unique, "guild_id must not be unique")
}

func TestStore_MultipleParentsPerGuild(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddParentChannel(ctx, guildA, parentA, nil, nil))
	require.NoError(t, store.AddParentChannel(ctx, guildA, parentB, nil, strPtr("{user}")))
	require.NoError(t, store.AddParentChannelRole(ctx, parentA, roleA))

	parents, err := store.GetParentChannelsByGuild(ctx, guildA)
	require.NoError(t, err)
	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, p.ChannelID.String())
	}
	assert.ElementsMatch(t, []string{parentA, parentB}, ids)

	require.NoError(t, store.DeleteParentChannel(ctx, parentA))
	ok, err := store.IsParentChannel(ctx, parentB)
	require.NoError(t, err)
	assert.True(t, ok, "deleting one parent keeps the other")
	roles, err := store.GetParentChannelRoles(ctx, parentA)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestStore_GuildIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddParentChannel(ctx, guildA, parentA, nil, nil))
	require.NoError(t, store.AddParentChannel(ctx, guildB, parentB, nil, nil))
	_, err := store.AddChildChannel(ctx, guildA, parentA, childA, ownerA, nil)
	require.NoError(t, err)
	_, err = store.AddChildChannel(ctx, guildB, parentB, childB, ownerA, nil)
	require.NoError(t, err)

	parents, err := store.GetParentChannelsByGuild(ctx, guildA)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, parentA, parents[0].ChannelID.String())

	children, err := store.GetChildChannelsByGuild(ctx, guildB)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, childB, children[0].ChannelID.String())

	owned, err := store.GetChildChannelsByOwner(ctx, guildA, ownerA)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, childA, owned[0].ChannelID.String())

	guilds, err := store.ChildGuildIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{guildA, guildB}, guilds)
}

func TestStore_ParentChannelRoles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddParentChannel(ctx, guildA, parentA, nil, nil))
	require.NoError(t, store.AddParentChannelRole(ctx, parentA, roleA))
	require.NoError(t, store.AddParentChannelRole(ctx, parentA, roleA), "insert-or-ignore")

	roles, err := store.GetParentChannelRoles(ctx, parentA)
	require.NoError(t, err)
	assert.Equal(t, []string{roleA}, roles)

	require.NoError(t, store.RemoveParentChannelRole(ctx, parentA, roleA))
	roles, err = store.GetParentChannelRoles(ctx, parentA)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestStore_ChildChannelLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddParentChannel(ctx, guildA, parentA, nil, nil))
	child, err := store.AddChildChannel(ctx, guildA, parentA, childA, ownerA, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), child.CreatedAt)

	isChild, err := store.IsChildChannel(ctx, childA)
	require.NoError(t, err)
	assert.True(t, isChild)
	isParent, err := store.IsParentChannel(ctx, childA)
	require.NoError(t, err)
	assert.False(t, isParent)

	require.NoError(t, store.UpdateControlMessage(ctx, childA, "700000000000000001"))
	require.NoError(t, store.UpdateChildChannelOwner(ctx, childA, ownerB))

	got, err := store.GetChildChannelWithParent(ctx, childA)
	require.NoError(t, err)
	assert.Equal(t, ownerB, got.OwnerID.String())
	assert.Equal(t, "700000000000000001", got.ControlMessage())
	assert.Equal(t, parentA, got.Parent.ChannelID.String())

	byParent, err := store.GetChildChannelsByParent(ctx, parentA)
	require.NoError(t, err)
	assert.Len(t, byParent, 1)

	require.NoError(t, store.DeleteChildChannel(ctx, childA))
	require.NoError(t, store.DeleteChildChannel(ctx, childA), "delete is idempotent")
	_, err = store.GetChildChannel(ctx, childA)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateChildChannelOwner(ctx, childA, ownerA), ErrNotFound)
}

func TestStore_ChildRequiresParent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.AddChildChannel(ctx, guildA, parentA, childA, ownerA, nil)
	assert.ErrorIs(t, err, ErrConstraintViolation)
}

func TestStore_DeleteParentCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddParentChannel(ctx, guildA, parentA, nil, nil))
	require.NoError(t, store.AddParentChannelRole(ctx, parentA, roleA))
	_, err := store.AddChildChannel(ctx, guildA, parentA, childA, ownerA, nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteParentChannel(ctx, parentA))

	roles, err := store.GetParentChannelRoles(ctx, parentA)
	require.NoError(t, err)
	assert.Empty(t, roles)
	isChild, err := store.IsChildChannel(ctx, childA)
	require.NoError(t, err)
	assert.False(t, isChild)
}

func TestStore_LookupChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddParentChannel(ctx, guildA, parentA, nil, nil))
	_, err := store.AddChildChannel(ctx, guildA, parentA, childA, ownerA, nil)
	require.NoError(t, err)

	tests := []struct {
		name       string
		channelID  string
		wantParent bool
		wantChild  bool
	}{
		{name: "parent", channelID: parentA, wantParent: true},
		{name: "child", channelID: childA, wantChild: true},
		{name: "unmanaged", channelID: childB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, child, err := store.LookupChannel(ctx, tt.channelID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantParent, parent != nil)
			assert.Equal(t, tt.wantChild, child != nil)
		})
	}
}

func TestStore_ClaimChildChannelOwnerIsExclusive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddParentChannel(ctx, guildA, parentA, nil, nil))
	_, err := store.AddChildChannel(ctx, guildA, parentA, childA, ownerA, nil)
	require.NoError(t, err)

	claimants := []string{"400000000000000010", "400000000000000011", "400000000000000012", "400000000000000013"}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for _, c := range claimants {
		wg.Add(1)
		go func(claimant string) {
			defer wg.Done()
			won, err := store.ClaimChildChannelOwner(ctx, childA, ownerA, claimant)
			assert.NoError(t, err)
			if won {
				mu.Lock()
				winners = append(winners, claimant)
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	child, err := store.GetChildChannel(ctx, childA)
	require.NoError(t, err)
	assert.Equal(t, winners[0], child.OwnerID.String())

	won, err := store.ClaimChildChannelOwner(ctx, childA, ownerA, ownerB)
	require.NoError(t, err)
	assert.False(t, won, "stale expected owner must not write")
	child, err = store.GetChildChannel(ctx, childA)
	require.NoError(t, err)
	assert.Equal(t, winners[0], child.OwnerID.String())
}

func TestSnowflakeRoundTrip(t *testing.T) {
	t.Parallel()
	sf, err := models.ParseSnowflake(childA)
	require.NoError(t, err)
	assert.Equal(t, childA, sf.String())
}
