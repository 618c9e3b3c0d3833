package algobot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/robfig/cron/v3"
)

// Poster delivers the daily challenge announcement for one guild. The
// bot implements it; tests substitute a recorder.
type Poster interface {
	PostDailyChallenge(ctx context.Context, settings GuildSettings) error
}

// cronSlogLogger adapts slog to cron's logger interface.
type cronSlogLogger struct {
	logger *slog.Logger
}

func (c cronSlogLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronSlogLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{tint.Err(err)}, keysAndValues...)
	c.logger.Error(msg, args...)
}

// Scheduler runs one daily posting job per configured guild, at the
// guild's post time in the guild's timezone.
//
// Jobs are keyed by guild ID: changing a guild's settings replaces its
// job, deleting the settings removes it. A reschedule also performs
// misfire catch-up: when today's trigger already passed within the
// grace window and nothing was delivered yet, the job fires once
// immediately. Overlapping runs for one guild are skipped, and panics
// in a job never take down the process.
type Scheduler struct {
	config *ScheduleConfig
	db     *store
	poster Poster
	logger *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	// lastRun maps guild ID to the date (in the guild's timezone) of
	// the most recent successful delivery.
	lastRun map[string]string

	// catchUpJobs tracks misfire catch-up posts, which run outside the
	// cron runner and so aren't covered by its stop context.
	catchUpJobs sync.WaitGroup

	now func() time.Time
}

func newScheduler(config *ScheduleConfig, db *store, poster Poster) *Scheduler {
	logger := slog.New(newTintHandler(config.LogLevel)).With(
		loggerNameKey, "scheduler",
	)
	cronLogger := cronSlogLogger{logger: logger}
	return &Scheduler{
		config: config,
		db:     db,
		poster: poster,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(
				cron.Recover(cronLogger),
				cron.SkipIfStillRunning(cronLogger),
			),
		),
		entries: map[string]cron.EntryID{},
		lastRun: map[string]string{},
		now:     time.Now,
	}
}

// Start loads every stored guild configuration, schedules the ones with
// a channel set, runs misfire catch-up and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	allSettings, err := s.db.AllGuildSettings(ctx)
	if err != nil {
		return fmt.Errorf("error loading guild settings: %w", err)
	}
	for _, settings := range allSettings {
		if settings.ChannelID == "" {
			continue
		}
		if err = s.schedule(settings); err != nil {
			s.logger.Error(
				"error scheduling guild",
				"guild_id", settings.GuildID,
				tint.Err(err),
			)
			continue
		}
		s.catchUp(settings)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "guilds", len(s.entries))
	return nil
}

// Stop halts the cron runner. The returned context is done once every
// in-flight job, including misfire catch-up posts, has finished.
func (s *Scheduler) Stop() context.Context {
	cronCtx := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		<-cronCtx.Done()
		s.catchUpJobs.Wait()
	}()
	return ctx
}

// Reschedule re-derives a single guild's job from its stored settings.
// Missing settings, or settings without a channel, remove the job.
func (s *Scheduler) Reschedule(ctx context.Context, guildID string) error {
	settings, err := s.db.GetGuildSettings(ctx, guildID)
	if err != nil {
		return err
	}
	if settings == nil || settings.ChannelID == "" {
		s.remove(guildID)
		return nil
	}
	if err = s.schedule(*settings); err != nil {
		return err
	}
	s.catchUp(*settings)
	return nil
}

// RescheduleAll re-derives every guild's job from the store. Guilds no
// longer present (or without a channel) lose their jobs.
func (s *Scheduler) RescheduleAll(ctx context.Context) error {
	allSettings, err := s.db.AllGuildSettings(ctx)
	if err != nil {
		return err
	}
	keep := map[string]bool{}
	for _, settings := range allSettings {
		if settings.ChannelID == "" {
			continue
		}
		keep[settings.GuildID] = true
		if err = s.schedule(settings); err != nil {
			s.logger.Error(
				"error scheduling guild",
				"guild_id", settings.GuildID,
				tint.Err(err),
			)
		}
	}

	s.mu.Lock()
	var stale []string
	for guildID := range s.entries {
		if !keep[guildID] {
			stale = append(stale, guildID)
		}
	}
	s.mu.Unlock()
	for _, guildID := range stale {
		s.remove(guildID)
	}
	return nil
}

// effectiveSchedule resolves a guild's post time and timezone, falling
// back to the process-wide defaults for unset fields.
func (s *Scheduler) effectiveSchedule(
	settings GuildSettings,
) (hour int, minute int, timezone string, err error) {
	postTime := settings.PostTime
	if postTime == "" {
		postTime = s.config.PostTime
	}
	timezone = settings.Timezone
	if timezone == "" {
		timezone = s.config.Timezone
	}
	hour, minute, err = parsePostTime(postTime)
	return hour, minute, timezone, err
}

func (s *Scheduler) cronSpec(settings GuildSettings) (string, error) {
	hour, minute, timezone, err := s.effectiveSchedule(settings)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", timezone, minute, hour), nil
}

// schedule installs (or replaces) the daily job for one guild.
func (s *Scheduler) schedule(settings GuildSettings) error {
	spec, err := s.cronSpec(settings)
	if err != nil {
		return err
	}
	guildID := settings.GuildID

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[guildID]; ok {
		s.cron.Remove(existing)
		delete(s.entries, guildID)
	}
	entryID, err := s.cron.AddFunc(
		spec, func() {
			s.runGuildJob(guildID)
		},
	)
	if err != nil {
		return fmt.Errorf("error adding cron entry %q: %w", spec, err)
	}
	s.entries[guildID] = entryID
	s.logger.Info("scheduled daily post", "guild_id", guildID, "spec", spec)
	return nil
}

func (s *Scheduler) remove(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[guildID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, guildID)
		s.logger.Info("removed daily post schedule", "guild_id", guildID)
	}
}

// runGuildJob executes one guild's daily post with fresh settings from
// the store, so mid-flight settings changes are honored.
func (s *Scheduler) runGuildJob(guildID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()
	ctx = WithLogger(ctx, s.logger.With("guild_id", guildID))

	settings, err := s.db.GetGuildSettings(ctx, guildID)
	if err != nil {
		s.logger.Error(
			"error loading settings for job",
			"guild_id", guildID,
			tint.Err(err),
		)
		return
	}
	if settings == nil || settings.ChannelID == "" {
		s.logger.Warn("job fired for unconfigured guild", "guild_id", guildID)
		s.remove(guildID)
		return
	}

	started := s.now()
	if err = s.poster.PostDailyChallenge(ctx, *settings); err != nil {
		s.logger.Error(
			"daily post failed",
			"guild_id", guildID,
			"duration", s.now().Sub(started),
			tint.Err(err),
		)
		return
	}
	s.markDelivered(*settings)
	s.logger.Info(
		"daily post complete",
		"guild_id", guildID,
		"duration", s.now().Sub(started),
	)
}

func (s *Scheduler) markDelivered(settings GuildSettings) {
	_, _, timezone, err := s.effectiveSchedule(settings)
	if err != nil {
		return
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[settings.GuildID] = s.now().In(loc).Format(dateLayout)
}

// catchUp fires the job once, immediately, when today's trigger time in
// the guild's timezone already passed within the misfire grace window
// and nothing was delivered today. Covers restarts and reschedules that
// straddle the post time.
func (s *Scheduler) catchUp(settings GuildSettings) {
	hour, minute, timezone, err := s.effectiveSchedule(settings)
	if err != nil {
		return
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return
	}
	now := s.now().In(loc)
	trigger := time.Date(
		now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc,
	)
	if now.Before(trigger) || now.Sub(trigger) > s.config.MisfireGrace {
		return
	}

	today := now.Format(dateLayout)
	s.mu.Lock()
	delivered := s.lastRun[settings.GuildID] == today
	s.mu.Unlock()
	if delivered {
		return
	}

	s.logger.Info(
		"missed trigger within grace window, posting now",
		"guild_id", settings.GuildID,
		"trigger", trigger,
	)
	s.catchUpJobs.Add(1)
	go func() {
		defer s.catchUpJobs.Done()
		s.runGuildJob(settings.GuildID)
	}()
}

// scheduledGuilds returns the guild IDs with an installed job.
func (s *Scheduler) scheduledGuilds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	guilds := make([]string, 0, len(s.entries))
	for guildID := range s.entries {
		guilds = append(guilds, guildID)
	}
	return guilds
}
