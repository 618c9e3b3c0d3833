package algobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lmittmann/tint"
)

// Set at build time, e.g.:
// -ldflags "-X github.com/algobotdev/algobot/algobot.Version=$$(date +'%Y%m%d')"
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// AlgoBot wires the stored problem data, the per-domain LeetCode
// clients, the extra judge clients, the LLM service, the Discord
// session and the per-guild scheduler into one runnable bot.
type AlgoBot struct {
	config *Config
	logger *slog.Logger

	db *store

	lcus       *LeetCode
	lccn       *LeetCode
	codeforces *CodeforcesClient
	atcoder    *AtCoderClient

	guard *requestGuard
	llm   *LLM

	discord   *Discord
	scheduler *Scheduler
}

// New creates an AlgoBot from the given configuration, opening the
// database and constructing every component. The bot does nothing
// until Run is called.
func New(config *Config) (*AlgoBot, error) {
	var errs []error

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &AlgoBot{
		config: config,
		guard:  newRequestGuard(),
	}
	b.logger = slog.New(newTintHandler(config.LogLevel))
	slog.SetDefault(b.logger)

	db, err := CreateDB(
		context.Background(),
		config.DatabaseType,
		config.Database,
		newTintHandler(config.DatabaseLogLevel),
		config.DatabaseSlowThreshold,
	)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	b.db = newStore(db, b.logger)

	b.lcus, err = NewLeetCode(
		DomainPrimary, config.LeetCode, b.db, config.HTTPClient,
	)
	errs = append(errs, err)
	b.lccn, err = NewLeetCode(
		DomainRegional, config.LeetCode, b.db, config.HTTPClient,
	)
	errs = append(errs, err)

	b.codeforces = NewCodeforcesClient(config.LeetCode, config.HTTPClient)
	b.atcoder = NewAtCoderClient(config.LeetCode, config.HTTPClient)

	if config.OpenAI.Token != "" {
		b.llm = NewLLM(config.OpenAI, b.db, b.guard)
	}

	if config.Discord.Token != "" {
		b.discord, err = newDiscord(config.Discord)
		errs = append(errs, err)
	}

	b.scheduler = newScheduler(config.Schedule, b.db, b)

	return b, errors.Join(errs...)
}

// Client returns the LeetCode client for a domain.
func (b *AlgoBot) Client(domain Domain) *LeetCode {
	if domain == DomainRegional {
		return b.lccn
	}
	return b.lcus
}

// Codeforces returns the Codeforces judge client.
func (b *AlgoBot) Codeforces() *CodeforcesClient {
	return b.codeforces
}

// AtCoder returns the AtCoder judge client.
func (b *AlgoBot) AtCoder() *AtCoderClient {
	return b.atcoder
}

// Run starts the Discord session (when a token is configured) and the
// scheduler, then blocks until ctx is cancelled and everything has
// shut down.
func (b *AlgoBot) Run(ctx context.Context) error {
	if b.discord != nil {
		if err := b.discord.Open(); err != nil {
			return err
		}
	} else {
		b.logger.Warn("no discord token configured, running without a session")
	}

	if err := b.scheduler.Start(ctx); err != nil {
		return err
	}

	b.logger.Info("bot running")
	<-ctx.Done()
	b.Shutdown()
	return nil
}

// Shutdown stops the scheduler (waiting for in-flight jobs up to the
// configured shutdown timeout), cancels background enrichment and
// closes the Discord session.
func (b *AlgoBot) Shutdown() {
	b.logger.Info("shutting down")
	select {
	case <-b.scheduler.Stop().Done():
	case <-time.After(b.config.ShutdownTimeout):
		b.logger.Warn("shutdown timeout elapsed, abandoning in-flight jobs")
	}
	b.lcus.Shutdown()
	b.lccn.Shutdown()
	if b.discord != nil {
		if err := b.discord.Close(); err != nil {
			b.logger.Error("error closing discord session", tint.Err(err))
		}
	}
	b.logger.Info("shutdown complete")
}

// PostDailyChallenge resolves today's challenge on the primary domain
// and delivers it to the guild's configured channel.
func (b *AlgoBot) PostDailyChallenge(
	ctx context.Context,
	settings GuildSettings,
) error {
	logger, ok := ContextLogger(ctx)
	if !ok {
		logger = b.logger
	}
	if b.discord == nil {
		return fmt.Errorf("no discord session")
	}
	daily, err := b.lcus.GetDailyChallenge(ctx, "")
	if err != nil {
		logger.Error("error resolving daily challenge", tint.Err(err))
		return err
	}
	if daily == nil {
		logger.Warn("daily challenge unavailable", "settings", settings)
		return fmt.Errorf("daily challenge unavailable")
	}
	return b.discord.SendDailyChallenge(settings.ChannelID, settings.RoleID, daily)
}

// GuildSettings returns one guild's stored daily-post settings, or nil
// when the guild has none.
func (b *AlgoBot) GuildSettings(
	ctx context.Context,
	guildID string,
) (*GuildSettings, error) {
	return b.db.GetGuildSettings(ctx, guildID)
}

// AllGuildSettings returns the stored daily-post settings for every
// guild.
func (b *AlgoBot) AllGuildSettings(ctx context.Context) ([]GuildSettings, error) {
	return b.db.AllGuildSettings(ctx)
}

// RescheduleAll rebuilds every guild's scheduled job from the store,
// dropping jobs for guilds that no longer have a channel configured.
func (b *AlgoBot) RescheduleAll(ctx context.Context) error {
	return b.scheduler.RescheduleAll(ctx)
}

// SetGuildChannel sets the announcement channel for a guild, creating
// its settings row if needed, and re-derives the guild's schedule.
func (b *AlgoBot) SetGuildChannel(
	ctx context.Context,
	guildID string,
	channelID string,
) error {
	if err := b.db.SetChannel(ctx, guildID, channelID); err != nil {
		return err
	}
	return b.scheduler.Reschedule(ctx, guildID)
}

// SetGuildRole sets the mention role for a guild with existing
// settings. Returns false when the guild has no settings row.
func (b *AlgoBot) SetGuildRole(
	ctx context.Context,
	guildID string,
	roleID string,
) (bool, error) {
	return b.db.SetRole(ctx, guildID, roleID)
}

// SetGuildPostTime updates a configured guild's post time (HH:MM) and
// re-derives its schedule. Returns false when the guild has no
// settings row.
func (b *AlgoBot) SetGuildPostTime(
	ctx context.Context,
	guildID string,
	postTime string,
) (bool, error) {
	updated, err := b.db.SetPostTime(ctx, guildID, postTime)
	if err != nil || !updated {
		return updated, err
	}
	return true, b.scheduler.Reschedule(ctx, guildID)
}

// SetGuildTimezone updates a configured guild's IANA timezone and
// re-derives its schedule. Returns false when the guild has no
// settings row.
func (b *AlgoBot) SetGuildTimezone(
	ctx context.Context,
	guildID string,
	timezone string,
) (bool, error) {
	updated, err := b.db.SetTimezone(ctx, guildID, timezone)
	if err != nil || !updated {
		return updated, err
	}
	return true, b.scheduler.Reschedule(ctx, guildID)
}

// RemoveGuild deletes a guild's settings row outright and removes its
// scheduled job. Returns false when there was nothing to delete.
func (b *AlgoBot) RemoveGuild(ctx context.Context, guildID string) (bool, error) {
	deleted, err := b.db.DeleteGuildSettings(ctx, guildID)
	if err != nil || !deleted {
		return deleted, err
	}
	return true, b.scheduler.Reschedule(ctx, guildID)
}

// Translate returns a Chinese translation of a problem's statement,
// resolving the problem through the domain's client first.
func (b *AlgoBot) Translate(
	ctx context.Context,
	userID string,
	domain Domain,
	problemID int,
	slug string,
) (*Translation, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("no openai token configured")
	}
	p, err := b.Client(domain).GetProblem(ctx, problemID, slug)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("problem not found")
	}
	return b.llm.Translate(ctx, userID, p, domain)
}

// Inspire returns progressive solving hints for a problem, resolving
// the problem through the domain's client first.
func (b *AlgoBot) Inspire(
	ctx context.Context,
	userID string,
	domain Domain,
	problemID int,
	slug string,
) (*Inspiration, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("no openai token configured")
	}
	p, err := b.Client(domain).GetProblem(ctx, problemID, slug)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("problem not found")
	}
	return b.llm.Inspire(ctx, userID, p, domain)
}
