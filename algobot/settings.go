package algobot

import (
	"log/slog"
)

// GuildSettings is the per-guild daily-post configuration. A schedule
// job exists for a guild exactly when its ChannelID is set; deleting
// the row removes the job.
type GuildSettings struct {
	GuildID   string `gorm:"primaryKey" json:"guild_id"`
	ChannelID string `json:"channel_id"`
	RoleID    string `json:"role_id"`
	PostTime  string `json:"post_time"`
	Timezone  string `json:"timezone"`

	// No gorm.DeletedAt here: deleting settings removes the row
	// outright, there is no tombstone to resurrect.
	CreatedAt int64 `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
}

func newGuildSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID:  guildID,
		PostTime: DefaultPostTime,
		Timezone: DefaultTimezone,
	}
}

// Validate rejects malformed post times and timezones before they hit
// storage. Validation happens here, at the settings boundary, never in
// the scheduler.
func (g GuildSettings) Validate() error {
	if g.PostTime != "" {
		if _, _, err := parsePostTime(g.PostTime); err != nil {
			return err
		}
	}
	if g.Timezone != "" {
		if err := validateTimezone(g.Timezone); err != nil {
			return err
		}
	}
	return nil
}

func (g GuildSettings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("guild_id", g.GuildID),
		slog.String("channel_id", g.ChannelID),
		slog.String("role_id", g.RoleID),
		slog.String("post_time", g.PostTime),
		slog.String("timezone", g.Timezone),
	)
}
