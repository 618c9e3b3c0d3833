package algobot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPoster struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *recordingPoster) PostDailyChallenge(
	_ context.Context,
	settings GuildSettings,
) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, settings.GuildID)
	return p.err
}

func (p *recordingPoster) callCount(guildID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, id := range p.calls {
		if id == guildID {
			count++
		}
	}
	return count
}

func testScheduler(t testing.TB, db *store, poster Poster) *Scheduler {
	t.Helper()
	if poster == nil {
		poster = &recordingPoster{}
	}
	return newScheduler(testScheduleConfig(), db, poster)
}

func TestSchedulerCronSpec(t *testing.T) {
	s := testScheduler(t, testStore(t), nil)

	spec, err := s.cronSpec(
		GuildSettings{GuildID: "guild1", PostTime: "09:30", Timezone: "Asia/Tokyo"},
	)
	require.NoError(t, err)
	assert.Equal(t, "CRON_TZ=Asia/Tokyo 30 9 * * *", spec)

	// Unset fields fall back to the process-wide defaults.
	spec, err = s.cronSpec(GuildSettings{GuildID: "guild1"})
	require.NoError(t, err)
	assert.Equal(t, "CRON_TZ=UTC 0 0 * * *", spec)

	_, err = s.cronSpec(GuildSettings{GuildID: "guild1", PostTime: "25:99"})
	assert.Error(t, err)
}

func TestSchedulerStartSchedulesConfiguredGuilds(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))
	require.NoError(t, db.SetChannel(ctx, "guild2", "channel2"))
	// A row without a channel gets no job.
	bare := newGuildSettings("guild3")
	require.NoError(t, db.SaveGuildSettings(ctx, bare))

	s := testScheduler(t, db, nil)
	require.NoError(t, s.Start(ctx))
	defer func() {
		<-s.Stop().Done()
	}()

	assert.ElementsMatch(t, []string{"guild1", "guild2"}, s.scheduledGuilds())
}

func TestSchedulerRescheduleTracksSettings(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	s := testScheduler(t, db, nil)
	require.NoError(t, s.Start(ctx))
	defer func() {
		<-s.Stop().Done()
	}()
	assert.Empty(t, s.scheduledGuilds())

	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))
	require.NoError(t, s.Reschedule(ctx, "guild1"))
	assert.Equal(t, []string{"guild1"}, s.scheduledGuilds())

	// Changing the post time swaps the entry, keyed by guild.
	updated, err := db.SetPostTime(ctx, "guild1", "09:30")
	require.NoError(t, err)
	require.True(t, updated)
	require.NoError(t, s.Reschedule(ctx, "guild1"))
	assert.Equal(t, []string{"guild1"}, s.scheduledGuilds())

	// Deleting the settings removes the job.
	deleted, err := db.DeleteGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, s.Reschedule(ctx, "guild1"))
	assert.Empty(t, s.scheduledGuilds())
}

func TestSchedulerRescheduleAllDropsStaleGuilds(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))
	require.NoError(t, db.SetChannel(ctx, "guild2", "channel2"))

	s := testScheduler(t, db, nil)
	require.NoError(t, s.Start(ctx))
	defer func() {
		<-s.Stop().Done()
	}()

	deleted, err := db.DeleteGuildSettings(ctx, "guild2")
	require.NoError(t, err)
	require.True(t, deleted)

	require.NoError(t, s.RescheduleAll(ctx))
	assert.Equal(t, []string{"guild1"}, s.scheduledGuilds())
}

func TestSchedulerCatchUpFiresMissedTrigger(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))
	updated, err := db.SetPostTime(ctx, "guild1", "09:00")
	require.NoError(t, err)
	require.True(t, updated)

	poster := &recordingPoster{}
	s := testScheduler(t, db, poster)
	// Two minutes past the trigger, well inside the grace window.
	s.now = func() time.Time {
		return time.Date(2024, 6, 14, 9, 2, 0, 0, time.UTC)
	}

	settings, err := db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)

	s.catchUp(*settings)
	require.Eventually(
		t,
		func() bool { return poster.callCount("guild1") == 1 },
		2*time.Second,
		10*time.Millisecond,
	)

	// Already delivered today: a second catch-up is a no-op.
	s.catchUp(*settings)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, poster.callCount("guild1"))
}

func TestSchedulerCatchUpRespectsGraceWindow(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))

	poster := &recordingPoster{}
	s := testScheduler(t, db, poster)

	settings, err := db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)
	settings.PostTime = "08:00"

	// An hour late is outside the default five-minute grace.
	s.now = func() time.Time {
		return time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	}
	s.catchUp(*settings)

	// A trigger still in the future never fires early.
	settings.PostTime = "10:00"
	s.catchUp(*settings)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, poster.callCount("guild1"))
}

func TestSchedulerCatchUpRetriesAfterFailure(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))
	updated, err := db.SetPostTime(ctx, "guild1", "09:00")
	require.NoError(t, err)
	require.True(t, updated)

	poster := &recordingPoster{err: fmt.Errorf("discord is down")}
	s := testScheduler(t, db, poster)
	s.now = func() time.Time {
		return time.Date(2024, 6, 14, 9, 2, 0, 0, time.UTC)
	}

	settings, err := db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)

	s.catchUp(*settings)
	require.Eventually(
		t,
		func() bool { return poster.callCount("guild1") == 1 },
		2*time.Second,
		10*time.Millisecond,
	)

	// The failed delivery was not recorded, so the next catch-up tries
	// again.
	poster.mu.Lock()
	poster.err = nil
	poster.mu.Unlock()
	s.catchUp(*settings)
	require.Eventually(
		t,
		func() bool { return poster.callCount("guild1") == 2 },
		2*time.Second,
		10*time.Millisecond,
	)
}

// blockingPoster holds delivery open until released, to exercise
// shutdown against in-flight posts.
type blockingPoster struct {
	startOnce sync.Once
	started   chan struct{}
	release   chan struct{}
}

func newBlockingPoster() *blockingPoster {
	return &blockingPoster{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *blockingPoster) PostDailyChallenge(
	_ context.Context,
	_ GuildSettings,
) error {
	p.startOnce.Do(func() { close(p.started) })
	<-p.release
	return nil
}

func TestSchedulerStopWaitsForCatchUpPost(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))
	updated, err := db.SetPostTime(ctx, "guild1", "09:00")
	require.NoError(t, err)
	require.True(t, updated)

	poster := newBlockingPoster()
	s := testScheduler(t, db, poster)
	s.now = func() time.Time {
		return time.Date(2024, 6, 14, 9, 2, 0, 0, time.UTC)
	}

	settings, err := db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)

	s.catchUp(*settings)
	<-poster.started

	// The catch-up post runs outside the cron runner, but Stop still
	// has to wait for it.
	stopped := s.Stop()
	select {
	case <-stopped.Done():
		t.Fatal("Stop returned while a catch-up post was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(poster.release)
	select {
	case <-stopped.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after the catch-up post finished")
	}
}

func TestSchedulerJobDropsUnconfiguredGuild(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))

	poster := &recordingPoster{}
	s := testScheduler(t, db, poster)
	settings, err := db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)
	require.NoError(t, s.schedule(*settings))
	assert.Equal(t, []string{"guild1"}, s.scheduledGuilds())

	// The guild vanished between scheduling and the trigger firing.
	deleted, err := db.DeleteGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.True(t, deleted)

	s.runGuildJob("guild1")
	assert.Empty(t, s.scheduledGuilds())
	assert.Equal(t, 0, poster.callCount("guild1"))
}
