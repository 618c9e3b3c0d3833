package algobot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertProblemsIgnoresExisting(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	problems := []Problem{
		{ID: 1, Slug: "two-sum", Title: "Two Sum"},
		{ID: 2, Slug: "add-two-numbers", Title: "Add Two Numbers"},
	}
	inserted, err := db.InsertProblems(ctx, problems)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	// Enrich one row, then replay the same bulk insert: the enriched
	// row must survive untouched.
	p, err := db.GetProblemByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	p.Rating = 1200
	p.Content = "<p>statement</p>"
	require.NoError(t, db.SaveProblem(ctx, p))

	inserted, err = db.InsertProblems(ctx, problems)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)

	p, err = db.GetProblemByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, float64(1200), p.Rating)
	assert.Equal(t, "<p>statement</p>", p.Content)
}

func TestInsertProblemsEmptySlice(t *testing.T) {
	db := testStore(t)
	inserted, err := db.InsertProblems(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)
}

func TestGetProblemMissing(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	p, err := db.GetProblemByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = db.GetProblemBySlug(ctx, "no-such-slug")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetProblemBySlug(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	_, err := db.InsertProblems(
		ctx, []Problem{{ID: 1, Slug: "two-sum", Title: "Two Sum"}},
	)
	require.NoError(t, err)

	p, err := db.GetProblemBySlug(ctx, "two-sum")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, p.ID)
}

func TestProblemCustomColumnsRoundTrip(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	p := &Problem{
		ID:    1,
		Slug:  "two-sum",
		Title: "Two Sum",
		Tags:  StringSlice{"array", "hash-table"},
		SimilarQuestions: SimilarQuestions{
			{Title: "3Sum", TitleSlug: "3sum", Difficulty: DifficultyMedium},
		},
	}
	require.NoError(t, db.SaveProblem(ctx, p))

	got, err := db.GetProblemByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.Tags, got.Tags)
	assert.Equal(t, p.SimilarQuestions, got.SimilarQuestions)
}

func TestUpsertDailyIdempotent(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	daily := newDailyChallenge(
		"2024-06-14",
		DomainPrimary,
		Problem{ID: 1, Slug: "two-sum", Title: "Two Sum"},
	)
	require.NoError(t, db.UpsertDaily(ctx, daily))

	// Same key with enriched fields replaces the row instead of
	// conflicting.
	daily.Rating = 1200
	require.NoError(t, db.UpsertDaily(ctx, daily))

	got, err := db.GetDaily(ctx, "2024-06-14", DomainPrimary)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, float64(1200), got.Rating)

	// The same date on the other domain is a distinct row.
	got, err = db.GetDaily(ctx, "2024-06-14", DomainRegional)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetChannelCreatesSettings(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))

	settings, err := db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, "channel1", settings.ChannelID)
	assert.Equal(t, DefaultPostTime, settings.PostTime)
	assert.Equal(t, DefaultTimezone, settings.Timezone)

	// Updating the channel keeps the rest of the row.
	updated, err := db.SetPostTime(ctx, "guild1", "09:30")
	require.NoError(t, err)
	require.True(t, updated)
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel2"))
	settings, err = db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, "channel2", settings.ChannelID)
	assert.Equal(t, "09:30", settings.PostTime)
}

func TestSettingsUpdatesRequireExistingRow(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	updated, err := db.SetPostTime(ctx, "missing", "09:30")
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = db.SetTimezone(ctx, "missing", "Asia/Tokyo")
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = db.SetRole(ctx, "missing", "role1")
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestSettingsValidation(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))

	_, err := db.SetPostTime(ctx, "guild1", "25:00")
	assert.Error(t, err)

	_, err = db.SetPostTime(ctx, "guild1", "0930")
	assert.Error(t, err)

	_, err = db.SetTimezone(ctx, "guild1", "Mars/Olympus_Mons")
	assert.Error(t, err)

	// The row is unchanged after rejected updates.
	settings, err := db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, DefaultPostTime, settings.PostTime)
	assert.Equal(t, DefaultTimezone, settings.Timezone)
}

func TestDeleteGuildSettingsRemovesRow(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))

	deleted, err := db.DeleteGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	assert.True(t, deleted)

	settings, err := db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	assert.Nil(t, settings)

	// No tombstone: recreating starts from defaults again.
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel9"))
	settings, err = db.GetGuildSettings(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, "channel9", settings.ChannelID)

	deleted, err = db.DeleteGuildSettings(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAllGuildSettings(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SetChannel(ctx, "guild1", "channel1"))
	require.NoError(t, db.SetChannel(ctx, "guild2", "channel2"))

	all, err := db.AllGuildSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTranslationCacheTTL(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	translation := &Translation{
		ProblemID: 1,
		Domain:    DomainPrimary,
		Title:     "两数之和",
		Content:   "给定一个整数数组...",
	}
	require.NoError(t, db.SaveTranslation(ctx, translation))

	got, err := db.GetTranslation(ctx, 1, DomainPrimary, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "两数之和", got.Title)

	// An expired entry behaves like a miss.
	translation.CreatedAt = time.Now().Add(-2 * time.Hour).Unix()
	require.NoError(t, db.SaveTranslation(ctx, translation))
	got, err = db.GetTranslation(ctx, 1, DomainPrimary, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Other domain is a miss.
	got, err = db.GetTranslation(ctx, 1, DomainRegional, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInspirationCacheTTL(t *testing.T) {
	db := testStore(t)
	ctx := context.Background()

	inspiration := &Inspiration{
		ProblemID: 1,
		Domain:    DomainPrimary,
		Content:   "1. Think about complements.",
	}
	require.NoError(t, db.SaveInspiration(ctx, inspiration))

	got, err := db.GetInspiration(ctx, 1, DomainPrimary, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)

	inspiration.CreatedAt = time.Now().Add(-2 * time.Hour).Unix()
	require.NoError(t, db.SaveInspiration(ctx, inspiration))
	got, err = db.GetInspiration(ctx, 1, DomainPrimary, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)
}
