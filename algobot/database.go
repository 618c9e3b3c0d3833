package algobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var dbOperationTimeout = 30 * time.Second

// store wraps the GORM connection and provides typed operations for the
// three record kinds the bot persists: problems, daily challenges and
// guild settings (plus the LLM result caches). All operations are
// blocking; callers that cannot tolerate blocking must offload.
type store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func newStore(db *gorm.DB, log *slog.Logger) *store {
	if log == nil {
		log = slog.Default()
	}
	return &store{
		db:     db,
		logger: log.With(loggerNameKey, "store"),
	}
}

func (s *store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dbOperationTimeout)
}

// InsertProblems bulk-inserts problem rows, skipping any whose ID
// already exists. Used for the cheap initial population from the
// list-view sync; existing rows are never modified here.
func (s *store) InsertProblems(ctx context.Context, problems []Problem) (int64, error) {
	if len(problems) == 0 {
		return 0, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rv := s.db.WithContext(ctx).Clauses(
		clause.OnConflict{DoNothing: true},
	).CreateInBatches(problems, 500)
	return rv.RowsAffected, rv.Error
}

// SaveProblem writes a full problem row, replacing any existing row
// with the same ID. Merge-before-write semantics are the caller's
// responsibility (see Problem.Merge).
func (s *store) SaveProblem(ctx context.Context, p *Problem) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.WithContext(ctx).Save(p).Error
}

// GetProblemByID returns the problem with the given ID, or nil if no
// such row exists.
func (s *store) GetProblemByID(ctx context.Context, id int) (*Problem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var p Problem
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetProblemBySlug returns the problem with the given slug, or nil if
// no such row exists.
func (s *store) GetProblemBySlug(ctx context.Context, slug string) (*Problem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var p Problem
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpsertDaily inserts or replaces the daily-challenge row for the
// record's (date, domain) key. The operation is idempotent.
func (s *store) UpsertDaily(ctx context.Context, daily *DailyChallenge) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "domain"}},
			UpdateAll: true,
		},
	).Create(daily).Error
}

// GetDaily returns the daily challenge for (date, domain), or nil if
// none has been recorded.
func (s *store) GetDaily(ctx context.Context, date string, domain Domain) (
	*DailyChallenge,
	error,
) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var daily DailyChallenge
	err := s.db.WithContext(ctx).Where(
		"date = ? AND domain = ?", date, domain,
	).First(&daily).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &daily, nil
}

// GetGuildSettings returns the settings row for a guild, or nil if the
// guild has none.
func (s *store) GetGuildSettings(ctx context.Context, guildID string) (
	*GuildSettings,
	error,
) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var settings GuildSettings
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

// SaveGuildSettings inserts or fully replaces a guild's settings row.
// Post time and timezone are validated before anything is written.
func (s *store) SaveGuildSettings(ctx context.Context, settings *GuildSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.WithContext(ctx).Save(settings).Error
}

// SetChannel updates the delivery channel for a guild, creating the
// settings row (with default post time and timezone) if absent.
func (s *store) SetChannel(ctx context.Context, guildID, channelID string) error {
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil {
		return err
	}
	if settings == nil {
		settings = newGuildSettings(guildID)
	}
	settings.ChannelID = channelID
	return s.SaveGuildSettings(ctx, settings)
}

// SetRole updates the mention role for a guild. Returns false if the
// guild has no settings row yet.
func (s *store) SetRole(ctx context.Context, guildID, roleID string) (bool, error) {
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil || settings == nil {
		return false, err
	}
	settings.RoleID = roleID
	return true, s.SaveGuildSettings(ctx, settings)
}

// SetPostTime updates the daily post time ("HH:MM", 24h) for a guild.
// Returns false if the guild has no settings row yet.
func (s *store) SetPostTime(ctx context.Context, guildID, postTime string) (bool, error) {
	if _, _, err := parsePostTime(postTime); err != nil {
		return false, err
	}
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil || settings == nil {
		return false, err
	}
	settings.PostTime = postTime
	return true, s.SaveGuildSettings(ctx, settings)
}

// SetTimezone updates the IANA timezone for a guild. Returns false if
// the guild has no settings row yet.
func (s *store) SetTimezone(ctx context.Context, guildID, timezone string) (bool, error) {
	if err := validateTimezone(timezone); err != nil {
		return false, err
	}
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil || settings == nil {
		return false, err
	}
	settings.Timezone = timezone
	return true, s.SaveGuildSettings(ctx, settings)
}

// DeleteGuildSettings removes a guild's settings row entirely. Returns
// true if a row was deleted.
func (s *store) DeleteGuildSettings(ctx context.Context, guildID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rv := s.db.WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).Delete(&GuildSettings{})
	return rv.RowsAffected > 0, rv.Error
}

// AllGuildSettings returns the settings rows for every guild.
func (s *store) AllGuildSettings(ctx context.Context) ([]GuildSettings, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var settings []GuildSettings
	err := s.db.WithContext(ctx).Find(&settings).Error
	return settings, err
}

// GetTranslation returns a cached translation for (problemID, domain)
// if one exists and is younger than ttl.
func (s *store) GetTranslation(
	ctx context.Context,
	problemID int,
	domain Domain,
	ttl time.Duration,
) (*Translation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var t Translation
	err := s.db.WithContext(ctx).Where(
		"problem_id = ? AND domain = ?", problemID, domain,
	).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if t.Expired(ttl) {
		return nil, nil
	}
	return &t, nil
}

// SaveTranslation inserts or replaces the cached translation for the
// record's (problem, domain) key.
func (s *store) SaveTranslation(ctx context.Context, t *Translation) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	return s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "problem_id"}, {Name: "domain"}},
			UpdateAll: true,
		},
	).Create(t).Error
}

// GetInspiration returns cached inspiration hints for
// (problemID, domain) if present and younger than ttl.
func (s *store) GetInspiration(
	ctx context.Context,
	problemID int,
	domain Domain,
	ttl time.Duration,
) (*Inspiration, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var insp Inspiration
	err := s.db.WithContext(ctx).Where(
		"problem_id = ? AND domain = ?", problemID, domain,
	).First(&insp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if insp.Expired(ttl) {
		return nil, nil
	}
	return &insp, nil
}

// SaveInspiration inserts or replaces the cached inspiration hints for
// the record's (problem, domain) key.
func (s *store) SaveInspiration(ctx context.Context, insp *Inspiration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if insp.CreatedAt == 0 {
		insp.CreatedAt = time.Now().Unix()
	}
	return s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "problem_id"}, {Name: "domain"}},
			UpdateAll: true,
		},
	).Create(insp).Error
}

// CreateDB initializes and returns a GORM database connection based on
// the specified database type, and migrates the bot's tables.
//
// Parameters:
//   - ctx: The context for the database operations.
//   - databaseType: The type of the database, must be 'sqlite' or 'postgres'.
//   - database: The database connection string, or SQLite file path.
//   - logHandler: Handler used for database logging.
//   - slowThreshold: Threshold for flagging slow queries.
func CreateDB(
	ctx context.Context,
	databaseType string,
	database string,
	logHandler slog.Handler,
	slowThreshold time.Duration,
) (*gorm.DB, error) {
	gormLogger := newGORMLogger(logHandler, slowThreshold)
	dbLogger := slog.New(logHandler)

	dbLogger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	txn := db.WithContext(ctx).Begin()

	mg := txn.Migrator()
	err = mg.AutoMigrate(
		&Problem{},
		&DailyChallenge{},
		&GuildSettings{},
		&Translation{},
		&Inspiration{},
	)
	if err != nil {
		return db, err
	}

	if commitErr := txn.Commit().Error; commitErr != nil {
		return db, commitErr
	}

	return db, nil
}

// getDB initializes a GORM connection for the given backend type.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(
			sqlite.Open(database),
			&gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	case dbTypePostgres:
		return gorm.Open(
			postgres.Open(database), &gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}
