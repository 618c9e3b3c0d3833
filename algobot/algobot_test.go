package algobot

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBot builds a bot without Discord, OpenAI or network clients,
// enough to exercise the settings and scheduling facade.
func testBot(t testing.TB) *AlgoBot {
	t.Helper()
	db := testStore(t)
	bot := &AlgoBot{
		config: DefaultConfig(),
		logger: slog.Default(),
		db:     db,
		guard:  newRequestGuard(),
	}
	bot.scheduler = newScheduler(testScheduleConfig(), db, bot)
	// Midday, far from the default 00:00 post time, so the schedule
	// changes below never trip misfire catch-up.
	bot.scheduler.now = func() time.Time {
		return time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	}
	return bot
}

func TestGuildSettingsFacade(t *testing.T) {
	bot := testBot(t)
	ctx := context.Background()

	settings, err := bot.GuildSettings(ctx, "guild1")
	require.NoError(t, err)
	assert.Nil(t, settings)

	all, err := bot.AllGuildSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, bot.SetGuildChannel(ctx, "guild1", "channel1"))
	require.NoError(t, bot.SetGuildChannel(ctx, "guild2", "channel2"))

	settings, err = bot.GuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, "channel1", settings.ChannelID)
	assert.Equal(t, DefaultPostTime, settings.PostTime)

	all, err = bot.AllGuildSettings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.ElementsMatch(
		t, []string{"guild1", "guild2"}, bot.scheduler.scheduledGuilds(),
	)

	removed, err := bot.RemoveGuild(ctx, "guild1")
	require.NoError(t, err)
	require.True(t, removed)
	settings, err = bot.GuildSettings(ctx, "guild1")
	require.NoError(t, err)
	assert.Nil(t, settings)
	assert.Equal(t, []string{"guild2"}, bot.scheduler.scheduledGuilds())
}

func TestRescheduleAllFacade(t *testing.T) {
	bot := testBot(t)
	ctx := context.Background()

	// Rows written behind the scheduler's back, as an external caller
	// editing the store directly would.
	require.NoError(t, bot.db.SetChannel(ctx, "guild1", "channel1"))
	require.NoError(t, bot.db.SetChannel(ctx, "guild2", "channel2"))
	assert.Empty(t, bot.scheduler.scheduledGuilds())

	require.NoError(t, bot.RescheduleAll(ctx))
	assert.ElementsMatch(
		t, []string{"guild1", "guild2"}, bot.scheduler.scheduledGuilds(),
	)

	deleted, err := bot.db.DeleteGuildSettings(ctx, "guild2")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, bot.RescheduleAll(ctx))
	assert.Equal(t, []string{"guild1"}, bot.scheduler.scheduledGuilds())
}
